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

// Package systematics names the systematic variations an analysis can run
// under. A variation is a (type, direction) pair; the JEC type switches the
// jet and missing-energy collections the reader serves, while the b-tag
// types only change the per-jet reweighting factors.
package systematics

import (
	"fmt"
	"strings"
)

// Type identifies an independent source of systematic uncertainty.
type Type int

const (
	// Nominal is the unshifted configuration.
	Nominal Type = iota
	// JEC is the jet energy correction shift. It is the only type with its
	// own jet and missing-energy collections.
	JEC
	// BTagPurityHF varies the heavy-flavour purity of the b-tag calibration.
	BTagPurityHF
	// BTagPurityLF varies the light-flavour purity of the b-tag calibration.
	BTagPurityLF
	// BTagStatHF1 and BTagStatHF2 vary the two statistical components of the
	// heavy-flavour b-tag calibration.
	BTagStatHF1
	BTagStatHF2
	// BTagStatLF1 and BTagStatLF2 vary the two statistical components of the
	// light-flavour b-tag calibration.
	BTagStatLF1
	BTagStatLF2
	// BTagCharmUnc1 and BTagCharmUnc2 vary the two components of the charm
	// extrapolation uncertainty.
	BTagCharmUnc1
	BTagCharmUnc2
)

var typeNames = map[Type]string{
	Nominal:       "nominal",
	JEC:           "jec",
	BTagPurityHF:  "btag_purity_hf",
	BTagPurityLF:  "btag_purity_lf",
	BTagStatHF1:   "btag_stat_hf1",
	BTagStatHF2:   "btag_stat_hf2",
	BTagStatLF1:   "btag_stat_lf1",
	BTagStatLF2:   "btag_stat_lf2",
	BTagCharmUnc1: "btag_charm_unc1",
	BTagCharmUnc2: "btag_charm_unc2",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Types lists every defined variation type, Nominal first.
func Types() []Type {
	return []Type{
		Nominal, JEC,
		BTagPurityHF, BTagPurityLF,
		BTagStatHF1, BTagStatHF2,
		BTagStatLF1, BTagStatLF2,
		BTagCharmUnc1, BTagCharmUnc2,
	}
}

// Direction is the sign of a systematic shift.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Selection pairs a variation type with a shift direction. The Nominal type
// has no meaningful direction: NewSelection collapses it to Up so that a
// nominal selection is a single state regardless of the direction asked for.
type Selection struct {
	Type      Type
	Direction Direction
}

// NewSelection builds a normalized selection.
func NewSelection(t Type, d Direction) Selection {
	if t == Nominal {
		d = Up
	}
	return Selection{Type: t, Direction: d}
}

// IsNominal reports whether the selection is the unshifted configuration.
func (s Selection) IsNominal() bool { return s.Type == Nominal }

func (s Selection) String() string {
	if s.Type == Nominal {
		return s.Type.String()
	}
	return s.Type.String() + ":" + s.Direction.String()
}

// ParseSelection parses a selection in the form printed by String:
// "nominal", or "<type>:<direction>" such as "jec:up" or
// "btag_purity_hf:down". A bare type name other than "nominal" selects the
// up shift.
func ParseSelection(s string) (Selection, error) {
	name, dirName, hasDir := strings.Cut(strings.TrimSpace(strings.ToLower(s)), ":")

	var typ Type
	found := false
	for t, n := range typeNames {
		if n == name {
			typ, found = t, true
			break
		}
	}
	if !found {
		return Selection{}, fmt.Errorf("unknown systematic type %q", name)
	}

	dir := Up
	if hasDir {
		switch dirName {
		case "up":
			dir = Up
		case "down":
			dir = Down
		default:
			return Selection{}, fmt.Errorf("unknown systematic direction %q", dirName)
		}
	}
	return NewSelection(typ, dir), nil
}
