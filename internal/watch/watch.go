// SPDX-License-Identifier: MIT

// Package watch submits separation jobs for WAV files dropped into the
// input directory. Events are debounced so partially written files settle
// before submission.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	xglog "github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/metrics"
)

// Submitter accepts a separation request; satisfied by the job manager
// through a small adapter in cmd/daemon.
type Submitter interface {
	SubmitPath(ctx context.Context, path string) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, path string) error

func (f SubmitterFunc) SubmitPath(ctx context.Context, path string) error { return f(ctx, path) }

// Config controls the watcher.
type Config struct {
	Dir      string
	Debounce time.Duration // settle time after the last write event
}

// Watcher turns filesystem events into job submissions.
type Watcher struct {
	cfg    Config
	submit Submitter

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New validates the directory and builds a Watcher.
func New(cfg Config, submit Submitter) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch dir is empty")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Watcher{cfg: cfg, submit: submit, pending: make(map[string]*time.Timer)}, nil
}

// Run blocks until ctx is canceled, submitting a job for every .wav file
// that appears in the directory and settles.
func (w *Watcher) Run(ctx context.Context) error {
	logger := xglog.WithComponentFromContext(ctx, "watch")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = fsw.Close()
		w.drainTimers()
	}()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", w.cfg.Dir, err)
	}

	logger.Info().
		Str(xglog.FieldEvent, "watch.start").
		Str(xglog.FieldPath, w.cfg.Dir).
		Dur("debounce", w.cfg.Debounce).
		Msg("watching input directory")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(xglog.FieldEvent, "watch.stop").Msg("watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			metrics.WatcherEventsTotal.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Str(xglog.FieldEvent, "watch.error").Msg("fsnotify watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".wav") {
		metrics.WatcherEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	// Restart the settle timer on every event for this file.
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[event.Name]; ok {
		timer.Stop()
	}
	path := event.Name
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.settled(ctx, path)
	})
}

func (w *Watcher) settled(ctx context.Context, path string) {
	logger := xglog.WithComponentFromContext(ctx, "watch")
	if ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		metrics.WatcherEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	if err := w.submit.SubmitPath(ctx, path); err != nil {
		metrics.WatcherEventsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "watch.submit_failed").
			Str(xglog.FieldPath, path).
			Msg("failed to submit watched file")
		return
	}

	metrics.WatcherEventsTotal.WithLabelValues("submitted").Inc()
	logger.Info().
		Str(xglog.FieldEvent, "watch.submitted").
		Str(xglog.FieldPath, path).
		Msg("submitted watched file")
}

func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
