// SPDX-License-Identifier: MIT

// Package stft implements the short-time Fourier transform and its inverse
// via overlap-add.
package stft

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/dsp/window"
)

// Spectrogram holds complex STFT coefficients indexed [bin][frame].
type Spectrogram [][]complex128

// Bins returns the number of frequency bins.
func (s Spectrogram) Bins() int { return len(s) }

// Frames returns the number of time frames.
func (s Spectrogram) Frames() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Power returns the power spectrogram |S|^2 as a bins x frames matrix.
func (s Spectrogram) Power() *mat.Dense {
	bins, frames := s.Bins(), s.Frames()
	p := mat.NewDense(bins, frames, nil)
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			re, im := real(s[f][t]), imag(s[f][t])
			p.Set(f, t, re*re+im*im)
		}
	}
	return p
}

// Magnitude returns |S| as a bins x frames matrix.
func (s Spectrogram) Magnitude() *mat.Dense {
	bins, frames := s.Bins(), s.Frames()
	m := mat.NewDense(bins, frames, nil)
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			re, im := real(s[f][t]), imag(s[f][t])
			m.Set(f, t, math.Sqrt(re*re+im*im))
		}
	}
	return m
}

// STFT performs forward and inverse short-time Fourier transforms with a
// fixed FFT size, hop size and window.
type STFT struct {
	fftSize int
	hopSize int
	win     []float64
	fft     *fourier.FFT
}

// New creates an STFT with the given FFT and hop sizes using a Hann window.
func New(fftSize, hopSize int) (*STFT, error) {
	if fftSize < 2 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of two >= 2, got %d", fftSize)
	}
	if hopSize < 1 || hopSize > fftSize {
		return nil, fmt.Errorf("hop size must be in [1, %d], got %d", fftSize, hopSize)
	}
	return &STFT{
		fftSize: fftSize,
		hopSize: hopSize,
		win:     window.Hann(fftSize),
		fft:     fourier.NewFFT(fftSize),
	}, nil
}

// Bins returns the number of frequency bins produced per frame.
func (s *STFT) Bins() int { return s.fftSize/2 + 1 }

// NumFrames returns the frame count for a signal of the given length.
func (s *STFT) NumFrames(length int) int {
	if length <= 0 {
		return 0
	}
	if length <= s.fftSize {
		return 1
	}
	return 1 + (length-s.fftSize+s.hopSize-1)/s.hopSize
}

// Transform computes the spectrogram of a real signal. The tail is
// zero-padded to a whole frame.
func (s *STFT) Transform(signal []float64) Spectrogram {
	frames := s.NumFrames(len(signal))
	bins := s.Bins()

	spec := make(Spectrogram, bins)
	for f := range spec {
		spec[f] = make([]complex128, frames)
	}

	buf := make([]float64, s.fftSize)
	coeffs := make([]complex128, bins)
	for t := 0; t < frames; t++ {
		off := t * s.hopSize
		for i := 0; i < s.fftSize; i++ {
			if off+i < len(signal) {
				buf[i] = signal[off+i] * s.win[i]
			} else {
				buf[i] = 0
			}
		}
		s.fft.Coefficients(coeffs, buf)
		for f := 0; f < bins; f++ {
			spec[f][t] = coeffs[f]
		}
	}
	return spec
}

// Inverse reconstructs a time signal of the given length from a spectrogram
// by inverse FFT and overlap-add with squared-window normalization.
func (s *STFT) Inverse(spec Spectrogram, length int) []float64 {
	frames := spec.Frames()
	if frames == 0 {
		return make([]float64, length)
	}
	outLen := (frames-1)*s.hopSize + s.fftSize

	out := make([]float64, outLen)
	wsum := make([]float64, outLen)

	coeffs := make([]complex128, s.Bins())
	frame := make([]float64, s.fftSize)
	for t := 0; t < frames; t++ {
		for f := 0; f < s.Bins(); f++ {
			coeffs[f] = spec[f][t]
		}
		s.fft.Sequence(frame, coeffs)
		off := t * s.hopSize
		for i := 0; i < s.fftSize; i++ {
			// gonum's FFT is unnormalized; divide by the transform length.
			out[off+i] += s.win[i] * frame[i] / float64(s.fftSize)
			wsum[off+i] += s.win[i] * s.win[i]
		}
	}

	const tiny = 1e-12
	for i := range out {
		if wsum[i] > tiny {
			out[i] /= wsum[i]
		}
	}

	if length <= 0 {
		length = outLen
	}
	result := make([]float64, length)
	copy(result, out)
	return result
}
