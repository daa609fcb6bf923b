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

package eventreader

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/cardinalhq/ntuplerunner/internal/eventstore"
	"github.com/cardinalhq/ntuplerunner/internal/physics"
	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

// JetWeighter scores one jet under a systematic selection. A factor of
// exactly zero means the calibration has nothing to say about the jet; the
// weight computation skips such factors instead of zeroing the event.
type JetWeighter interface {
	JetWeight(jet physics.Jet, typ systematics.Type, dir systematics.Direction) float64
}

// Config carries the construction parameters for a Reader.
type Config struct {
	// Simulation selects the simulation column set: the JEC-shifted
	// collections and the stored generator weight. When false the reader
	// serves real data, where the event weight is exactly 1.
	Simulation bool
	// Weighter supplies per-jet b-tag factors for simulated events. It may
	// be nil, in which case the reweighting step is skipped.
	Weighter JetWeighter
}

// Reader iterates the events of an ordered partition list as one sequence.
//
// Accessor results describe the event materialized by the most recent
// successful Next. Calling an accessor before the first Next, or after a
// Rewind, violates that precondition; such calls serve an empty event
// rather than panic, but the values mean nothing. Slices returned by
// accessors are owned by the reader and valid until the next Next or
// Rewind call.
type Reader struct {
	store      eventstore.Store
	partitions []string
	cfg        Config

	cur      int
	src      eventstore.RowSource
	rowCount int64
	nextRow  int64

	buf        eventstore.RowBuffer
	eventsRead int64

	leptons []physics.Lepton
	jets    []physics.Jet
	met     physics.MET
	numPV   int

	jetsJECUp   []physics.Jet
	jetsJECDown []physics.Jet
	metJECUp    physics.MET
	metJECDown  physics.MET
	rawWeight   float64

	selection systematics.Selection
	reweight  bool

	weight      float64
	weightValid bool

	closed bool
}

// NewReader binds the first partition and returns a reader positioned
// before its first event. Every name in partitions must exist in the store;
// a missing first partition fails here, later ones fail at the Next that
// reaches them.
func NewReader(store eventstore.Store, partitions []string, cfg Config) (*Reader, error) {
	if store == nil {
		return nil, errors.New("a backing store is required")
	}
	if len(partitions) == 0 {
		return nil, errors.New("at least one partition name is required")
	}
	r := &Reader{
		store:      store,
		partitions: slices.Clone(partitions),
		cfg:        cfg,
		selection:  systematics.NewSelection(systematics.Nominal, systematics.Up),
		reweight:   true,
	}
	if err := r.bind(0); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) columnSet() eventstore.ColumnSet {
	if r.cfg.Simulation {
		return eventstore.SimulationColumns
	}
	return eventstore.DataColumns
}

// bind releases the current binding, then opens the partition at index idx.
// The release must come first: when a one-partition sequence rewinds, the
// fresh binding has to start at row zero rather than observe the exhausted
// cursor still holding the file.
func (r *Reader) bind(idx int) error {
	if r.src != nil {
		src := r.src
		r.src = nil
		if err := src.Close(); err != nil {
			return fmt.Errorf("release partition %q: %w", r.partitions[r.cur], err)
		}
	}
	src, err := r.store.OpenPartition(r.partitions[idx], r.columnSet())
	if err != nil {
		return err
	}
	r.cur = idx
	r.src = src
	r.rowCount = src.NumRows()
	r.nextRow = 0
	recordPartitionBound(r.partitions[idx])
	return nil
}

// Next advances to the next event, rebinding across partition boundaries
// and skipping empty partitions. It returns io.EOF once the final partition
// is exhausted; after that every further call returns io.EOF. Any other
// error leaves the reader on its current event.
func (r *Reader) Next() error {
	if r.closed {
		return errors.New("reader is closed")
	}
	for r.nextRow >= r.rowCount {
		if r.cur+1 >= len(r.partitions) {
			return io.EOF
		}
		if err := r.bind(r.cur + 1); err != nil {
			return err
		}
	}
	if err := r.src.ReadRow(&r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			// The binding reported more rows than it served.
			return fmt.Errorf("partition %q ended at row %d of %d: %w",
				r.partitions[r.cur], r.nextRow, r.rowCount, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("read partition %q row %d: %w", r.partitions[r.cur], r.nextRow, err)
	}
	r.nextRow++
	r.eventsRead++
	r.materialize()
	r.weightValid = false
	recordEventRead()
	return nil
}

// Rewind resets the reader to before the first event of the first
// partition. The current binding is fully released before the first
// partition is reacquired, and no event is loaded until the next Next.
func (r *Reader) Rewind() error {
	if r.closed {
		return errors.New("reader is closed")
	}
	if err := r.bind(0); err != nil {
		return err
	}
	r.clearEvent()
	r.weightValid = false
	return nil
}

// Close releases the current partition binding. The backing store is
// borrowed and stays open.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.src != nil {
		src := r.src
		r.src = nil
		return src.Close()
	}
	return nil
}

// SetSystematics selects the variation subsequent accessors serve. The
// Nominal type admits no direction, so it is normalized to Up. The cached
// weight is always invalidated: the per-jet factors depend on the selection
// even when the served collections do not.
func (r *Reader) SetSystematics(typ systematics.Type, dir systematics.Direction) {
	r.selection = systematics.NewSelection(typ, dir)
	r.weightValid = false
}

// Systematics returns the selection in effect.
func (r *Reader) Systematics() systematics.Selection { return r.selection }

// SetBTagReweighting toggles the per-jet reweighting step of the weight
// computation. The toggle deliberately does not invalidate a cached weight;
// its effect becomes visible at the next advance, rewind, or systematics
// change.
func (r *Reader) SetBTagReweighting(enabled bool) { r.reweight = enabled }

// Leptons returns the current event's leptons in decreasing transverse
// momentum. Leptons have no systematic variants, so the selection does not
// matter here.
func (r *Reader) Leptons() []physics.Lepton { return r.leptons }

// Jets returns the jet collection for the current selection: the JEC up or
// down variant when a simulated source runs under a JEC selection, the
// nominal collection otherwise. Jets are in decreasing transverse momentum.
func (r *Reader) Jets() []physics.Jet {
	if r.cfg.Simulation && r.selection.Type == systematics.JEC {
		if r.selection.Direction == systematics.Up {
			return r.jetsJECUp
		}
		return r.jetsJECDown
	}
	return r.jets
}

// MET returns the missing transverse energy for the current selection,
// routed the same way as Jets.
func (r *Reader) MET() physics.MET {
	if r.cfg.Simulation && r.selection.Type == systematics.JEC {
		if r.selection.Direction == systematics.Up {
			return r.metJECUp
		}
		return r.metJECDown
	}
	return r.met
}

// NumPV returns the number of reconstructed primary vertices.
func (r *Reader) NumPV() int { return r.numPV }

// RawWeight returns the stored generator weight of the current event, 1 for
// real data.
func (r *Reader) RawWeight() float64 {
	if !r.cfg.Simulation {
		return 1
	}
	return r.rawWeight
}

// Weight returns the current event's composite weight.
//
// Real data always weighs exactly 1. For simulation the weight is the
// stored generator weight times the per-jet factors of the configured
// weighter, evaluated over the nominal jets with the current selection as
// arguments; zero factors are skipped. The product is computed on first
// call and cached until the next advance, rewind, or systematics change.
func (r *Reader) Weight() float64 {
	if !r.cfg.Simulation {
		return 1
	}
	if r.weightValid {
		return r.weight
	}
	w := r.rawWeight
	if r.reweight && r.cfg.Weighter != nil {
		// Factors are always evaluated on the nominal jets. The selection
		// enters through the factor arguments, not through which collection
		// is scanned; a JEC selection reweights the same jets as nominal.
		for _, jet := range r.jets {
			if f := r.cfg.Weighter.JetWeight(jet, r.selection.Type, r.selection.Direction); f != 0 {
				w *= f
			}
		}
	}
	r.weight = w
	r.weightValid = true
	return w
}

// Partition returns the name of the partition the reader is bound to.
func (r *Reader) Partition() string { return r.partitions[r.cur] }

// EventsRead returns the number of events served since construction,
// including any read before a Rewind.
func (r *Reader) EventsRead() int64 { return r.eventsRead }

func (r *Reader) materialize() {
	b := &r.buf

	r.leptons = r.leptons[:0]
	for i := range b.Leptons.Pt {
		r.leptons = append(r.leptons, physics.NewLepton(
			b.Leptons.Flavour[i],
			float64(b.Leptons.Pt[i]),
			float64(b.Leptons.Eta[i]),
			float64(b.Leptons.Phi[i]),
			float64(b.Leptons.Isolation[i]),
		))
	}
	r.jets = appendJets(r.jets[:0], &b.Jets)
	r.met = physics.NewMET(float64(b.MET.Pt), float64(b.MET.Phi))
	r.numPV = int(b.NumPV)

	slices.SortStableFunc(r.leptons, leptonPtDesc)
	slices.SortStableFunc(r.jets, jetPtDesc)

	if !r.cfg.Simulation {
		return
	}
	r.jetsJECUp = appendJets(r.jetsJECUp[:0], &b.JetsJECUp)
	r.jetsJECDown = appendJets(r.jetsJECDown[:0], &b.JetsJECDown)
	r.metJECUp = physics.NewMET(float64(b.METJECUp.Pt), float64(b.METJECUp.Phi))
	r.metJECDown = physics.NewMET(float64(b.METJECDown.Pt), float64(b.METJECDown.Phi))
	r.rawWeight = float64(b.RawWeight)

	slices.SortStableFunc(r.jetsJECUp, jetPtDesc)
	slices.SortStableFunc(r.jetsJECDown, jetPtDesc)
}

func (r *Reader) clearEvent() {
	r.leptons = r.leptons[:0]
	r.jets = r.jets[:0]
	r.jetsJECUp = r.jetsJECUp[:0]
	r.jetsJECDown = r.jetsJECDown[:0]
	r.met = physics.MET{}
	r.metJECUp = physics.MET{}
	r.metJECDown = physics.MET{}
	r.numPV = 0
	r.rawWeight = 0
	r.buf.Reset()
}

func appendJets(dst []physics.Jet, cols *eventstore.JetColumns) []physics.Jet {
	for i := range cols.Pt {
		dst = append(dst, physics.NewJet(
			float64(cols.Pt[i]),
			float64(cols.Eta[i]),
			float64(cols.Phi[i]),
			float64(cols.BTag[i]),
			cols.Flavour[i],
		))
	}
	return dst
}

func leptonPtDesc(a, b physics.Lepton) int {
	return physics.PtDescending(a.Candidate, b.Candidate)
}

func jetPtDesc(a, b physics.Jet) int {
	return physics.PtDescending(a.Candidate, b.Candidate)
}
