// SPDX-License-Identifier: MIT

package separate

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/audio"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/dsp/stft"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/nmf"
)

// writeMixture writes a WAV of two overlapping sines, the usual toy mixture
// for checking the pipeline end to end.
func writeMixture(t *testing.T, dir string, channels int) string {
	t.Helper()
	const rate = 8000
	const n = 4096
	clip := &audio.Clip{SampleRate: rate, Channels: make([][]float64, channels)}
	for c := range clip.Channels {
		clip.Channels[c] = make([]float64, n)
		for i := range clip.Channels[c] {
			ts := float64(i) / rate
			left := 0.4 * math.Sin(2*math.Pi*440*ts)
			right := 0.4 * math.Sin(2*math.Pi*1320*ts)
			if channels == 2 && c == 1 {
				left = 0.2 * left
			} else if channels == 2 {
				right = 0.2 * right
			}
			clip.Channels[c][i] = left + right
		}
	}

	path := filepath.Join(dir, "mixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.Encode(f, clip))
	require.NoError(t, f.Close())
	return path
}

func baseRequest(input, outDir string) Request {
	return Request{
		InputPath:  input,
		OutputDir:  outDir,
		Model:      "is",
		Rank:       2,
		Iterations: 10,
		FFTSize:    256,
		HopSize:    64,
		Seed:       1,
	}
}

func TestRunSpectralModels(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 1)

	for _, model := range []string{"euc", "kl", "is", "cauchy"} {
		t.Run(model, func(t *testing.T) {
			outDir := filepath.Join(dir, "out-"+model)
			req := baseRequest(input, outDir)
			req.Model = model

			art, err := Run(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, art.Stems, 2)
			assert.Equal(t, "mixture-stem1.wav", art.Stems[0])
			assert.Equal(t, "mixture-stem2.wav", art.Stems[1])
			assert.NotEmpty(t, art.Loss)
			assert.Less(t, art.Loss[len(art.Loss)-1], art.Loss[0])

			for _, stem := range art.Stems {
				f, err := os.Open(filepath.Join(outDir, stem))
				require.NoError(t, err)
				clip, err := audio.Decode(f)
				require.NoError(t, f.Close())
				require.NoError(t, err)
				assert.Equal(t, 1, clip.NumChannels())
				assert.Equal(t, 8000, clip.SampleRate)
				assert.Equal(t, 4096, clip.Length())
			}
		})
	}
}

func TestRunWritesReport(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 1)
	outDir := filepath.Join(dir, "out")

	art, err := Run(context.Background(), baseRequest(input, outDir))
	require.NoError(t, err)
	assert.Equal(t, "mixture-report.json", art.Report)

	data, err := os.ReadFile(filepath.Join(outDir, art.Report))
	require.NoError(t, err)

	var report struct {
		Request   Request   `json:"request"`
		Artifacts Artifacts `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "is", report.Request.Model)
	assert.Len(t, report.Artifacts.Stems, 2)
	assert.Equal(t, 10, report.Artifacts.Stats.Iterations)
	assert.Equal(t, 8000, report.Artifacts.Stats.SampleRate)
	assert.Greater(t, report.Artifacts.Stats.Frames, 0)
}

func TestRunComplexModel(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 1)
	outDir := filepath.Join(dir, "out")

	req := baseRequest(input, outDir)
	req.Model = ModelCNMF
	req.Iterations = 5

	art, err := Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, art.Stems, 2)
	assert.NotEmpty(t, art.Loss)
}

func TestComplexOptionsCarrySparsity(t *testing.T) {
	spec := stft.Spectrogram{
		{1 + 0i, 0 + 2i},
		{3 + 0i, 0 + 0i},
	}
	req := baseRequest("in.wav", "out")
	req.Rank = 3

	opts := complexOptions(spec, req)
	assert.Equal(t, 3, opts.Rank)
	assert.InDelta(t, 1.2, opts.P, 1e-12)
	assert.Greater(t, opts.Regularizer, 0.0)
	assert.InDelta(t, nmf.DefaultRegularizer(spec, 3, 1.2), opts.Regularizer, 1e-15)
}

func TestBasisGroups(t *testing.T) {
	assert.Equal(t, [][]int{{0}, {1}, {2}}, basisGroups(3, 0))
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, basisGroups(4, 2))
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, basisGroups(4, 1))
}

func TestRunGroupedSources(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 2)

	req := baseRequest(input, filepath.Join(dir, "out"))
	req.Model = ModelMNMF
	req.Rank = 4
	req.Sources = 2
	req.Iterations = 5
	req.FFTSize = 128
	req.HopSize = 64

	art, err := Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, art.Stems, 2)

	for _, stem := range art.Stems {
		f, err := os.Open(filepath.Join(dir, "out", stem))
		require.NoError(t, err)
		clip, err := audio.Decode(f)
		require.NoError(t, f.Close())
		require.NoError(t, err)
		assert.Equal(t, 2, clip.NumChannels())
	}
}

func TestRunMultichannelModel(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 2)
	outDir := filepath.Join(dir, "out")

	req := baseRequest(input, outDir)
	req.Model = ModelMNMF
	req.Iterations = 5
	req.FFTSize = 128
	req.HopSize = 64

	art, err := Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, art.Stems, 2)

	f, err := os.Open(filepath.Join(outDir, art.Stems[0]))
	require.NoError(t, err)
	clip, err := audio.Decode(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, 2, clip.NumChannels())
}

func TestRunMultichannelRejectsMono(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 1)

	req := baseRequest(input, filepath.Join(dir, "out"))
	req.Model = ModelMNMF

	_, err := Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factorize:")
}

func TestRunDeterministicGivenSeed(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 1)

	run := func(outDir string) *Artifacts {
		art, err := Run(context.Background(), baseRequest(input, outDir))
		require.NoError(t, err)
		return art
	}
	a := run(filepath.Join(dir, "a"))
	b := run(filepath.Join(dir, "b"))
	assert.Equal(t, a.Loss, b.Loss)

	da, err := os.ReadFile(filepath.Join(dir, "a", a.Stems[0]))
	require.NoError(t, err)
	db, err := os.ReadFile(filepath.Join(dir, "b", b.Stems[0]))
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty input", func(r *Request) { r.InputPath = "" }},
		{"empty output", func(r *Request) { r.OutputDir = "" }},
		{"unknown model", func(r *Request) { r.Model = "pca" }},
		{"zero rank", func(r *Request) { r.Rank = 0 }},
		{"negative sources", func(r *Request) { r.Sources = -1 }},
		{"indivisible sources", func(r *Request) { r.Rank = 4; r.Sources = 3 }},
		{"zero iterations", func(r *Request) { r.Iterations = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest("in.wav", "out")
			tc.mutate(&req)
			_, err := Run(context.Background(), req)
			assert.Error(t, err)
		})
	}
}

func TestRunMissingInput(t *testing.T) {
	req := baseRequest(filepath.Join(t.TempDir(), "nope.wav"), t.TempDir())
	_, err := Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode:")
}

func TestRunRecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	input := writeMixture(t, dir, 1)

	rec := &captureMetrics{}
	_, err := RunWithDeps(context.Background(), baseRequest(input, filepath.Join(dir, "out")), Deps{
		Metrics: rec,
		Clock:   time.Now,
	})
	require.NoError(t, err)
	assert.Equal(t, "is", rec.model)
	assert.Equal(t, 10, rec.iterations)
	assert.Greater(t, rec.bytes, 0)
}

type captureMetrics struct {
	model      string
	iterations int
	bytes      int
}

func (m *captureMetrics) RecordSeparation(model string, _ time.Duration, iterations int, _ float64) {
	m.model, m.iterations = model, iterations
}

func (m *captureMetrics) RecordArtifactBytes(n int) { m.bytes += n }
