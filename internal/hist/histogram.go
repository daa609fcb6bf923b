// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package hist provides a fixed-bin weighted histogram over a linear axis.
// Bins are half-open [lo, hi) intervals of equal width; values below the
// axis accumulate in the underflow bucket and values at or above the upper
// edge accumulate in the overflow bucket, so the total filled weight is
// never lost.
package hist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Histogram accumulates weighted entries into equal-width bins.
// It is not safe for concurrent use.
type Histogram struct {
	name    string
	lo      float64
	hi      float64
	width   float64
	counts  []float64
	under   float64
	over    float64
	entries int64
}

// New creates a histogram named name with bins equal-width bins spanning
// [lo, hi).
func New(name string, bins int, lo, hi float64) (*Histogram, error) {
	if name == "" {
		return nil, errors.New("histogram name must not be empty")
	}
	if bins <= 0 {
		return nil, fmt.Errorf("histogram %q: bins must be positive, got %d", name, bins)
	}
	if !(lo < hi) {
		return nil, fmt.Errorf("histogram %q: lower edge %g must be below upper edge %g", name, lo, hi)
	}
	return &Histogram{
		name:   name,
		lo:     lo,
		hi:     hi,
		width:  (hi - lo) / float64(bins),
		counts: make([]float64, bins),
	}, nil
}

// Fill adds weight w at value x. Entries counts every call, including
// fills that land in the underflow or overflow buckets. NaN values are
// dropped entirely.
func (h *Histogram) Fill(x, w float64) {
	if math.IsNaN(x) {
		return
	}
	h.entries++
	switch {
	case x < h.lo:
		h.under += w
	case x >= h.hi:
		h.over += w
	default:
		idx := int((x - h.lo) / h.width)
		// Guard the upper edge against float rounding.
		if idx >= len(h.counts) {
			idx = len(h.counts) - 1
		}
		h.counts[idx] += w
	}
}

// Name returns the histogram name.
func (h *Histogram) Name() string { return h.name }

// Bins returns the number of in-range bins.
func (h *Histogram) Bins() int { return len(h.counts) }

// Bounds returns the lower and upper edges of the axis.
func (h *Histogram) Bounds() (lo, hi float64) { return h.lo, h.hi }

// Counts returns a copy of the in-range bin contents.
func (h *Histogram) Counts() []float64 {
	out := make([]float64, len(h.counts))
	copy(out, h.counts)
	return out
}

// Entries returns the number of Fill calls that were not dropped.
func (h *Histogram) Entries() int64 { return h.entries }

// Underflow returns the accumulated weight below the axis.
func (h *Histogram) Underflow() float64 { return h.under }

// Overflow returns the accumulated weight at or above the upper edge.
func (h *Histogram) Overflow() float64 { return h.over }

// Integral returns the summed weight of the in-range bins. Underflow and
// overflow are excluded.
func (h *Histogram) Integral() float64 {
	var sum float64
	for _, c := range h.counts {
		sum += c
	}
	return sum
}

type histogramJSON struct {
	Name      string    `json:"name"`
	Bins      int       `json:"bins"`
	Lo        float64   `json:"lo"`
	Hi        float64   `json:"hi"`
	Counts    []float64 `json:"counts"`
	Underflow float64   `json:"underflow"`
	Overflow  float64   `json:"overflow"`
	Entries   int64     `json:"entries"`
}

// MarshalJSON implements json.Marshaler.
func (h *Histogram) MarshalJSON() ([]byte, error) {
	return json.Marshal(histogramJSON{
		Name:      h.name,
		Bins:      len(h.counts),
		Lo:        h.lo,
		Hi:        h.hi,
		Counts:    h.counts,
		Underflow: h.under,
		Overflow:  h.over,
		Entries:   h.entries,
	})
}
