// SPDX-License-Identifier: MIT

// Package audio reads and writes PCM WAV files, converting between integer
// samples on disk and per-channel float64 samples in [-1, 1] used by the
// DSP pipeline.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Clip is decoded audio: one float64 slice per channel, all equal length.
type Clip struct {
	SampleRate int
	Channels   [][]float64
}

// NumChannels returns the channel count.
func (c *Clip) NumChannels() int { return len(c.Channels) }

// Length returns the number of samples per channel.
func (c *Clip) Length() int {
	if len(c.Channels) == 0 {
		return 0
	}
	return len(c.Channels[0])
}

// Mono returns the mean of all channels as a single slice. For mono input
// it returns the channel directly.
func (c *Clip) Mono() []float64 {
	if len(c.Channels) == 1 {
		return c.Channels[0]
	}
	n := c.Length()
	out := make([]float64, n)
	for _, ch := range c.Channels {
		for i, v := range ch {
			out[i] += v
		}
	}
	scale := 1 / float64(len(c.Channels))
	for i := range out {
		out[i] *= scale
	}
	return out
}

var ErrNotWAV = errors.New("not a valid WAV file")

// Decode reads a PCM WAV stream into per-channel float samples.
func Decode(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read PCM data: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, ErrNotWAV
	}

	nch := buf.Format.NumChannels
	frames := len(buf.Data) / nch
	scale := 1 / float64(int(1)<<(dec.BitDepth-1))

	clip := &Clip{
		SampleRate: buf.Format.SampleRate,
		Channels:   make([][]float64, nch),
	}
	for c := range clip.Channels {
		clip.Channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < nch; c++ {
			clip.Channels[c][i] = float64(buf.Data[i*nch+c]) * scale
		}
	}
	return clip, nil
}

// Encode writes the clip as 16-bit PCM WAV. Samples outside [-1, 1] are
// clipped.
func Encode(w io.WriteSeeker, clip *Clip) error {
	if clip == nil || len(clip.Channels) == 0 {
		return errors.New("empty clip")
	}
	nch := len(clip.Channels)
	frames := clip.Length()
	for c, ch := range clip.Channels {
		if len(ch) != frames {
			return fmt.Errorf("channel %d has %d samples, expected %d", c, len(ch), frames)
		}
	}

	const bitDepth = 16
	const maxVal = 1<<(bitDepth-1) - 1

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: nch, SampleRate: clip.SampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, frames*nch),
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < nch; c++ {
			v := clip.Channels[c][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			buf.Data[i*nch+c] = int(math.Round(v * maxVal))
		}
	}

	enc := wav.NewEncoder(w, clip.SampleRate, bitDepth, nch, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write PCM data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize WAV: %w", err)
	}
	return nil
}

// EncodeBytes encodes the clip to an in-memory WAV image, for callers that
// write through an atomic file writer instead of a seekable file.
func EncodeBytes(clip *Clip) ([]byte, error) {
	var buf seekBuffer
	if err := Encode(&buf, clip); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// seekBuffer is a minimal in-memory io.WriteSeeker; the WAV encoder seeks
// back to patch chunk sizes on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		b.data = append(b.data, make([]byte, need-len(b.data))...)
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = int(offset)
	case io.SeekCurrent:
		b.pos += int(offset)
	case io.SeekEnd:
		b.pos = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if b.pos < 0 {
		return 0, errors.New("negative position")
	}
	return int64(b.pos), nil
}

// Normalize scales samples so the peak magnitude is at the given level.
// Silent input is returned unchanged.
func Normalize(samples []float64, peak float64) []float64 {
	var max float64
	for _, v := range samples {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	out := make([]float64, len(samples))
	if max == 0 {
		copy(out, samples)
		return out
	}
	scale := peak / max
	for i, v := range samples {
		out[i] = v * scale
	}
	return out
}
