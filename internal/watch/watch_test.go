// SPDX-License-Identifier: MIT

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{ch: make(chan string, 16)}
}

func (s *recordingSubmitter) SubmitPath(_ context.Context, path string) error {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	s.ch <- path
	return nil
}

func (s *recordingSubmitter) wait(t *testing.T) string {
	t.Helper()
	select {
	case p := <-s.ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submission")
		return ""
	}
}

func startWatcher(t *testing.T, dir string, sub Submitter) (context.CancelFunc, chan struct{}) {
	t.Helper()
	w, err := New(Config{Dir: dir, Debounce: 50 * time.Millisecond}, sub)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	// Give fsnotify a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	return cancel, done
}

func TestWatcherSubmitsSettledWAV(t *testing.T) {
	dir := t.TempDir()
	sub := newRecordingSubmitter()
	cancel, done := startWatcher(t, dir, sub)
	defer func() { cancel(); <-done }()

	path := filepath.Join(dir, "mixture.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o600))

	got := sub.wait(t)
	assert.Equal(t, path, got)
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	sub := newRecordingSubmitter()
	cancel, done := startWatcher(t, dir, sub)
	defer func() { cancel(); <-done }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "track.wav"), []byte("RIFFdata"), 0o600))

	got := sub.wait(t)
	assert.Equal(t, filepath.Join(dir, "track.wav"), got)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Len(t, sub.paths, 1)
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	sub := newRecordingSubmitter()
	cancel, done := startWatcher(t, dir, sub)
	defer func() { cancel(); <-done }()

	path := filepath.Join(dir, "mixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	sub.wait(t)
	// Settle past one more debounce window: no second submission.
	time.Sleep(150 * time.Millisecond)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Len(t, sub.paths, 1)
}

func TestWatcherValidation(t *testing.T) {
	_, err := New(Config{Dir: ""}, nil)
	assert.Error(t, err)

	_, err = New(Config{Dir: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{Dir: file}, nil)
	assert.Error(t, err)
}
