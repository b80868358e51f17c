// SPDX-License-Identifier: MIT

package mnmf

import (
	"fmt"
	"math/cmplx"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/linalg"
)

// CovTensor stores an M x M Hermitian matrix per (bin, frame).
type CovTensor struct {
	Bins, Frames, Channels int
	data                   []complex128
}

// NewCovTensor allocates a zeroed covariance tensor.
func NewCovTensor(bins, frames, channels int) *CovTensor {
	return &CovTensor{
		Bins: bins, Frames: frames, Channels: channels,
		data: make([]complex128, bins*frames*channels*channels),
	}
}

// At returns a view of the matrix at (bin f, frame t). Mutations through the
// view write into the tensor.
func (x *CovTensor) At(f, t int) linalg.CMat {
	m := x.Channels
	off := (f*x.Frames + t) * m * m
	return linalg.CMat{N: m, Data: x.data[off : off+m*m]}
}

// SetAt copies src into position (f, t).
func (x *CovTensor) SetAt(f, t int, src linalg.CMat) {
	copy(x.At(f, t).Data, src.Data)
}

// SpatialTensor stores an M x M spatial covariance per (bin, basis).
type SpatialTensor struct {
	Bins, Rank, Channels int
	data                 []complex128
}

// NewSpatialTensor allocates a spatial tensor with every matrix set to the
// identity.
func NewSpatialTensor(bins, rank, channels int) *SpatialTensor {
	h := &SpatialTensor{
		Bins: bins, Rank: rank, Channels: channels,
		data: make([]complex128, bins*rank*channels*channels),
	}
	for f := 0; f < bins; f++ {
		for k := 0; k < rank; k++ {
			m := h.At(f, k)
			for i := 0; i < channels; i++ {
				m.Set(i, i, 1)
			}
		}
	}
	return h
}

// At returns a mutable view of the matrix at (bin f, basis k).
func (h *SpatialTensor) At(f, k int) linalg.CMat {
	m := h.Channels
	off := (f*h.Rank + k) * m * m
	return linalg.CMat{N: m, Data: h.data[off : off+m*m]}
}

// SetAt copies src into position (f, k).
func (h *SpatialTensor) SetAt(f, k int, src linalg.CMat) {
	copy(h.At(f, k).Data, src.Data)
}

// Clone returns a deep copy.
func (h *SpatialTensor) Clone() *SpatialTensor {
	out := &SpatialTensor{Bins: h.Bins, Rank: h.Rank, Channels: h.Channels,
		data: make([]complex128, len(h.data))}
	copy(out.data, h.data)
	return out
}

// Covariance builds the observed covariance tensor X(f,t) = x(f,t)·x(f,t)ᴴ
// from per-channel spectrograms indexed [channel][bin][frame]. All channels
// must share dimensions.
func Covariance(specs [][][]complex128) (*CovTensor, error) {
	channels := len(specs)
	if channels == 0 {
		return nil, fmt.Errorf("no channels")
	}
	bins := len(specs[0])
	if bins == 0 {
		return nil, fmt.Errorf("empty spectrogram")
	}
	frames := len(specs[0][0])
	for ch, s := range specs {
		if len(s) != bins || (bins > 0 && len(s[0]) != frames) {
			return nil, fmt.Errorf("channel %d has mismatched dimensions", ch)
		}
	}

	x := NewCovTensor(bins, frames, channels)
	vec := make([]complex128, channels)
	for f := 0; f < bins; f++ {
		for t := 0; t < frames; t++ {
			for ch := 0; ch < channels; ch++ {
				vec[ch] = specs[ch][f][t]
			}
			m := x.At(f, t)
			for i := 0; i < channels; i++ {
				for j := 0; j < channels; j++ {
					m.Set(i, j, vec[i]*cmplx.Conj(vec[j]))
				}
			}
		}
	}
	return x, nil
}
