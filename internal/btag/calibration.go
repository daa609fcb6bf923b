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

// Package btag reweights simulated jets with b-tag calibration tables.
//
// A calibration file carries, per parton flavour class and systematic
// selection, weights binned in the b-tag discriminator. Heavy-flavour
// (bottom, charm) tables are binned in jet pt alone; light tables in pt and
// |eta|. The weight of a jet whose kinematics fall outside the calibrated
// range is 1, and a stored weight of 0 means the calibration has nothing to
// say for that discriminator bin.
package btag

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

// Kinematic binning of the calibration, fixed by the upstream measurement.
var (
	ptBinEdges  = [...]float64{20, 30, 40, 60, 100, 160}
	etaBinEdges = [...]float64{0, 0.8, 1.6, 2.4}
)

const (
	numPtBinsHF  = len(ptBinEdges)      // 6, bottom and charm
	numPtBinsLF  = 4                    // light tables stop at 60 GeV
	numEtaBinsLF = len(etaBinEdges) - 1 // 3
)

const calibrationVersion = 1

// WeightBins is one calibration cell: weights as a binned function of the
// b-tag discriminator. Edges holds the len(Weights)+1 ascending bin
// boundaries.
type WeightBins struct {
	Edges   []float64 `yaml:"edges"`
	Weights []float64 `yaml:"weights"`
}

// Lookup returns the weight of the bin containing v. Negative discriminator
// values mean the tagger had no inputs and fall into the first bin; values
// otherwise outside the binned range return 0, which downstream weight
// computations treat as "no calibration".
func (b WeightBins) Lookup(v float64) float64 {
	if len(b.Weights) == 0 {
		return 0
	}
	if v < 0 {
		return b.Weights[0]
	}
	if v < b.Edges[0] || v >= b.Edges[len(b.Edges)-1] {
		return 0
	}
	i := sort.SearchFloat64s(b.Edges, v)
	if i < len(b.Edges) && b.Edges[i] == v {
		return b.Weights[i]
	}
	return b.Weights[i-1]
}

func (b WeightBins) validate() error {
	if len(b.Weights) == 0 {
		return fmt.Errorf("cell has no weights")
	}
	if len(b.Edges) != len(b.Weights)+1 {
		return fmt.Errorf("cell has %d edges for %d weights, want %d",
			len(b.Edges), len(b.Weights), len(b.Weights)+1)
	}
	for i := 1; i < len(b.Edges); i++ {
		if b.Edges[i] <= b.Edges[i-1] {
			return fmt.Errorf("cell edges are not ascending at index %d", i)
		}
	}
	return nil
}

// Calibration holds the loaded weight tables. Bottom and Charm map a
// selection to one cell per pt bin; Light maps to cells indexed by pt bin
// then |eta| bin.
type Calibration struct {
	Bottom map[systematics.Selection][]WeightBins
	Charm  map[systematics.Selection][]WeightBins
	Light  map[systematics.Selection][][]WeightBins
}

var selNominal = systematics.NewSelection(systematics.Nominal, systematics.Up)

func upDown(t systematics.Type) []systematics.Selection {
	return []systematics.Selection{
		systematics.NewSelection(t, systematics.Up),
		systematics.NewSelection(t, systematics.Down),
	}
}

// BottomSelections lists the selections a calibration must provide bottom
// tables for. The remaining variation types fall back to nominal.
func BottomSelections() []systematics.Selection {
	out := []systematics.Selection{selNominal}
	out = append(out, upDown(systematics.JEC)...)
	out = append(out, upDown(systematics.BTagPurityHF)...)
	out = append(out, upDown(systematics.BTagStatHF1)...)
	out = append(out, upDown(systematics.BTagStatHF2)...)
	return out
}

// CharmSelections lists the required charm tables.
func CharmSelections() []systematics.Selection {
	out := []systematics.Selection{selNominal}
	out = append(out, upDown(systematics.BTagCharmUnc1)...)
	out = append(out, upDown(systematics.BTagCharmUnc2)...)
	return out
}

// LightSelections lists the required light tables.
func LightSelections() []systematics.Selection {
	out := []systematics.Selection{selNominal}
	out = append(out, upDown(systematics.JEC)...)
	out = append(out, upDown(systematics.BTagPurityLF)...)
	out = append(out, upDown(systematics.BTagStatLF1)...)
	out = append(out, upDown(systematics.BTagStatLF2)...)
	return out
}

func (c Calibration) validate() error {
	for _, sel := range BottomSelections() {
		cells, ok := c.Bottom[sel]
		if !ok {
			return fmt.Errorf("missing bottom table for %s", sel)
		}
		if err := validateCells(cells, numPtBinsHF); err != nil {
			return fmt.Errorf("bottom table %s: %w", sel, err)
		}
	}
	for _, sel := range CharmSelections() {
		cells, ok := c.Charm[sel]
		if !ok {
			return fmt.Errorf("missing charm table for %s", sel)
		}
		if err := validateCells(cells, numPtBinsHF); err != nil {
			return fmt.Errorf("charm table %s: %w", sel, err)
		}
	}
	for _, sel := range LightSelections() {
		rows, ok := c.Light[sel]
		if !ok {
			return fmt.Errorf("missing light table for %s", sel)
		}
		if len(rows) != numPtBinsLF {
			return fmt.Errorf("light table %s has %d pt bins, want %d", sel, len(rows), numPtBinsLF)
		}
		for i, cells := range rows {
			if err := validateCells(cells, numEtaBinsLF); err != nil {
				return fmt.Errorf("light table %s pt bin %d: %w", sel, i, err)
			}
		}
	}
	return nil
}

func validateCells(cells []WeightBins, want int) error {
	if len(cells) != want {
		return fmt.Errorf("has %d cells, want %d", len(cells), want)
	}
	for i, cell := range cells {
		if err := cell.validate(); err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
	}
	return nil
}

// calibrationFile is the YAML shape; table keys are selection strings such
// as "nominal" or "jec:up".
type calibrationFile struct {
	Version int                       `yaml:"version"`
	Bottom  map[string][]WeightBins   `yaml:"bottom"`
	Charm   map[string][]WeightBins   `yaml:"charm"`
	Light   map[string][][]WeightBins `yaml:"light"`
}

// LoadCalibration reads and fully validates a calibration file. Every
// required table must be present and well formed; a truncated calibration
// fails here rather than silently weighting jets with 1.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("read calibration: %w", err)
	}
	var raw calibrationFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Calibration{}, fmt.Errorf("parse calibration: %w", err)
	}
	if raw.Version != calibrationVersion {
		return Calibration{}, fmt.Errorf("unsupported calibration version %d, expected %d", raw.Version, calibrationVersion)
	}

	cal := Calibration{
		Bottom: make(map[systematics.Selection][]WeightBins, len(raw.Bottom)),
		Charm:  make(map[systematics.Selection][]WeightBins, len(raw.Charm)),
		Light:  make(map[systematics.Selection][][]WeightBins, len(raw.Light)),
	}
	for key, cells := range raw.Bottom {
		sel, err := systematics.ParseSelection(key)
		if err != nil {
			return Calibration{}, fmt.Errorf("bottom table %q: %w", key, err)
		}
		cal.Bottom[sel] = cells
	}
	for key, cells := range raw.Charm {
		sel, err := systematics.ParseSelection(key)
		if err != nil {
			return Calibration{}, fmt.Errorf("charm table %q: %w", key, err)
		}
		cal.Charm[sel] = cells
	}
	for key, rows := range raw.Light {
		sel, err := systematics.ParseSelection(key)
		if err != nil {
			return Calibration{}, fmt.Errorf("light table %q: %w", key, err)
		}
		cal.Light[sel] = rows
	}

	if err := cal.validate(); err != nil {
		return Calibration{}, fmt.Errorf("calibration %s: %w", path, err)
	}
	return cal, nil
}

// WriteCalibration writes a calibration to path after validating it.
func WriteCalibration(path string, cal Calibration) error {
	if err := cal.validate(); err != nil {
		return err
	}
	raw := calibrationFile{
		Version: calibrationVersion,
		Bottom:  make(map[string][]WeightBins, len(cal.Bottom)),
		Charm:   make(map[string][]WeightBins, len(cal.Charm)),
		Light:   make(map[string][][]WeightBins, len(cal.Light)),
	}
	for sel, cells := range cal.Bottom {
		raw.Bottom[sel.String()] = cells
	}
	for sel, cells := range cal.Charm {
		raw.Charm[sel.String()] = cells
	}
	for sel, rows := range cal.Light {
		raw.Light[sel.String()] = rows
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	return nil
}

// UnitCalibration returns a calibration with every required table present
// and every weight 1 over the full discriminator range. Useful as a neutral
// stand-in when no measured tables are available.
func UnitCalibration() Calibration {
	unit := WeightBins{Edges: []float64{0, 1.000001}, Weights: []float64{1}}

	hfCells := func() []WeightBins {
		cells := make([]WeightBins, numPtBinsHF)
		for i := range cells {
			cells[i] = unit
		}
		return cells
	}
	lightRows := func() [][]WeightBins {
		rows := make([][]WeightBins, numPtBinsLF)
		for i := range rows {
			rows[i] = make([]WeightBins, numEtaBinsLF)
			for j := range rows[i] {
				rows[i][j] = unit
			}
		}
		return rows
	}

	cal := Calibration{
		Bottom: make(map[systematics.Selection][]WeightBins),
		Charm:  make(map[systematics.Selection][]WeightBins),
		Light:  make(map[systematics.Selection][][]WeightBins),
	}
	for _, sel := range BottomSelections() {
		cal.Bottom[sel] = hfCells()
	}
	for _, sel := range CharmSelections() {
		cal.Charm[sel] = hfCells()
	}
	for _, sel := range LightSelections() {
		cal.Light[sel] = lightRows()
	}
	return cal
}
