// SPDX-License-Identifier: MIT

package stft

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSizes(t *testing.T) {
	_, err := New(1000, 256)
	assert.Error(t, err)
	_, err = New(1024, 0)
	assert.Error(t, err)
	_, err = New(1024, 2048)
	assert.Error(t, err)
}

func TestTransformShape(t *testing.T) {
	s, err := New(512, 128)
	require.NoError(t, err)

	signal := make([]float64, 4000)
	spec := s.Transform(signal)

	assert.Equal(t, 257, spec.Bins())
	assert.Equal(t, s.NumFrames(len(signal)), spec.Frames())
}

func TestShortSignalYieldsOneFrame(t *testing.T) {
	s, err := New(512, 128)
	require.NoError(t, err)

	spec := s.Transform(make([]float64, 10))
	assert.Equal(t, 1, spec.Frames())
}

func TestRoundTrip(t *testing.T) {
	s, err := New(512, 128)
	require.NoError(t, err)

	n := 8192
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = math.Sin(2*math.Pi*440*float64(i)/8000) +
			0.5*math.Sin(2*math.Pi*1200*float64(i)/8000)
	}

	rec := s.Inverse(s.Transform(signal), n)
	require.Len(t, rec, n)

	// Edges lack full window overlap; compare the interior.
	for i := 1024; i < n-1024; i++ {
		assert.InDelta(t, signal[i], rec[i], 1e-8, "sample %d", i)
	}
}

func TestPowerMatchesMagnitudeSquared(t *testing.T) {
	s, err := New(256, 64)
	require.NoError(t, err)

	signal := make([]float64, 2048)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 300 * float64(i) / 8000)
	}
	spec := s.Transform(signal)
	p := spec.Power()
	m := spec.Magnitude()

	rows, cols := p.Dims()
	assert.Equal(t, spec.Bins(), rows)
	assert.Equal(t, spec.Frames(), cols)
	for f := 0; f < rows; f += 16 {
		for tt := 0; tt < cols; tt += 8 {
			assert.InDelta(t, p.At(f, tt), m.At(f, tt)*m.At(f, tt), 1e-10)
		}
	}
}
