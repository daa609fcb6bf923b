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

// Package physics provides the reconstructed-object types served by the
// event reader: charged leptons, jets, and missing transverse energy, all
// built on a shared four-momentum core.
package physics

import "math"

// Charged lepton masses in GeV, by absolute PDG code.
const (
	electronMass = 0.000511
	muonMass     = 0.105658
	tauMass      = 1.77686
)

// Candidate is the kinematic core shared by every reconstructed object:
// transverse momentum and mass in GeV, pseudorapidity, and azimuthal angle
// in radians.
type Candidate struct {
	Pt   float64
	Eta  float64
	Phi  float64
	Mass float64
}

// Px returns the x component of the momentum.
func (c Candidate) Px() float64 { return c.Pt * math.Cos(c.Phi) }

// Py returns the y component of the momentum.
func (c Candidate) Py() float64 { return c.Pt * math.Sin(c.Phi) }

// Pz returns the longitudinal momentum component.
func (c Candidate) Pz() float64 { return c.Pt * math.Sinh(c.Eta) }

// P returns the magnitude of the momentum.
func (c Candidate) P() float64 { return c.Pt * math.Cosh(c.Eta) }

// Energy returns the total energy of the candidate.
func (c Candidate) Energy() float64 {
	p := c.P()
	return math.Sqrt(p*p + c.Mass*c.Mass)
}

// DeltaPhi returns the azimuthal separation to other, wrapped into [-pi, pi].
func (c Candidate) DeltaPhi(other Candidate) float64 {
	d := c.Phi - other.Phi
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// DeltaR returns the separation to other in the eta-phi plane.
func (c Candidate) DeltaR(other Candidate) float64 {
	return math.Hypot(c.Eta-other.Eta, c.DeltaPhi(other))
}

// PtDescending orders candidates by decreasing transverse momentum. Equal
// momenta compare as equal so that a stable sort keeps their stored order.
func PtDescending(a, b Candidate) int {
	switch {
	case a.Pt > b.Pt:
		return -1
	case a.Pt < b.Pt:
		return 1
	default:
		return 0
	}
}

// Lepton is a reconstructed charged lepton. Flavour is the signed PDG code
// (11 electron, 13 muon, 15 tau, negative for antiparticles). Isolation
// shrinks as the energy deposits around the lepton do.
type Lepton struct {
	Candidate
	Flavour   int32
	Isolation float64
}

// NewLepton builds a lepton, deriving the mass from the flavour code.
// Unknown codes get a zero mass.
func NewLepton(flavour int32, pt, eta, phi, isolation float64) Lepton {
	var mass float64
	switch flavour {
	case 11, -11:
		mass = electronMass
	case 13, -13:
		mass = muonMass
	case 15, -15:
		mass = tauMass
	}
	return Lepton{
		Candidate: Candidate{Pt: pt, Eta: eta, Phi: phi, Mass: mass},
		Flavour:   flavour,
		Isolation: isolation,
	}
}

// Jet is a reconstructed jet. BTag is the b-tagging discriminator, larger
// for more b-like jets, and may be negative when the tagger had no inputs.
// Flavour is the PDG code of the matched parton; it is zero when no match
// exists, which is always the case for real data.
type Jet struct {
	Candidate
	BTag    float64
	Flavour int32
}

// NewJet builds a jet. Jet masses are not stored and stay zero.
func NewJet(pt, eta, phi, btag float64, flavour int32) Jet {
	return Jet{
		Candidate: Candidate{Pt: pt, Eta: eta, Phi: phi},
		BTag:      btag,
		Flavour:   flavour,
	}
}

// MET is the missing transverse energy of an event. Pseudorapidity and mass
// are zero by construction.
type MET struct {
	Candidate
}

// NewMET builds a missing-energy vector from its transverse components.
func NewMET(pt, phi float64) MET {
	return MET{Candidate: Candidate{Pt: pt, Phi: phi}}
}
