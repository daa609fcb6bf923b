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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/ntuplerunner/internal/btag"
	"github.com/cardinalhq/ntuplerunner/internal/eventstore"
	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

func init() {
	var storeDir string
	var description string
	var events int
	var simPartitions []string
	var dataPartitions []string
	var seed uint64
	var calibrationOut string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a demo event store filled with synthetic events",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "ntuplerunner-generate"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()
			return runGenerate(doneCtx, storeDir, description, events, simPartitions, dataPartitions, seed, calibrationOut)
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", appConfig.Store.Dir, "Directory to create the event store in")
	cmd.Flags().StringVar(&description, "description", "synthetic single-muon demo store", "Store description")
	cmd.Flags().IntVar(&events, "events", 500, "Events to generate per partition")
	cmd.Flags().StringSliceVar(&simPartitions, "sim-partitions", []string{"TTbar", "Wjets", "SingleTop"}, "Simulation partitions to create")
	cmd.Flags().StringSliceVar(&dataPartitions, "data-partitions", []string{"SingleMuRun2012A", "SingleMuRun2012B"}, "Data partitions to create")
	cmd.Flags().Uint64Var(&seed, "seed", 2012, "Base seed for the event generator")
	cmd.Flags().StringVar(&calibrationOut, "calibration", "", "Also write a demo b-tag calibration YAML to this path")

	rootCmd.AddCommand(cmd)
}

func runGenerate(ctx context.Context, dir, description string, events int, simParts, dataParts []string, seed uint64, calibrationOut string) error {
	ll := slog.Default()

	if events <= 0 {
		return fmt.Errorf("events must be positive, got %d", events)
	}
	if len(simParts)+len(dataParts) == 0 {
		return fmt.Errorf("nothing to generate, no partitions named")
	}

	store, err := eventstore.Create(dir, description)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	t0 := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range simParts {
		g.Go(func() error {
			return generatePartition(gctx, store, name, eventstore.SimulationColumns, events, seed)
		})
	}
	for _, name := range dataParts {
		g.Go(func() error {
			return generatePartition(gctx, store, name, eventstore.DataColumns, events, seed)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ll.Info("Generated store",
		slog.String("store", store.Location()),
		slog.String("storeID", store.ID().String()),
		slog.Int("partitions", len(simParts)+len(dataParts)),
		slog.Int("eventsPerPartition", events),
		slog.Duration("elapsed", time.Since(t0)))

	if calibrationOut != "" {
		if err := btag.WriteCalibration(calibrationOut, demoCalibration()); err != nil {
			return fmt.Errorf("failed to write calibration: %w", err)
		}
		ll.Info("Wrote demo calibration", slog.String("path", calibrationOut))
	}
	return nil
}

func generatePartition(ctx context.Context, store eventstore.Store, name string, columns eventstore.ColumnSet, events int, seed uint64) error {
	ll := slog.Default().With(slog.String("partition", name))

	w, err := store.CreatePartition(name, columns)
	if err != nil {
		return fmt.Errorf("failed to create partition %q: %w", name, err)
	}

	// Each partition gets its own deterministic stream so output is
	// reproducible regardless of goroutine scheduling.
	rng := rand.New(rand.NewPCG(seed, xxhash.Sum64String(name)))

	var buf eventstore.RowBuffer
	for i := 0; i < events; i++ {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return err
		}
		synthesizeEvent(rng, columns, &buf)
		if err := w.WriteRow(&buf); err != nil {
			_ = w.Close()
			return fmt.Errorf("failed to write row %d of %q: %w", i, name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close partition %q: %w", name, err)
	}
	ll.Info("Wrote partition", slog.Int("events", events))
	return nil
}

// synthesizeEvent fills buf with one pseudo event: a hard muon, a soft
// lepton now and then, a handful of jets with falling pt, and MET roughly
// recoiling against the muon. Simulation rows additionally carry the JEC
// shifted collections and a generator weight near one.
func synthesizeEvent(rng *rand.Rand, columns eventstore.ColumnSet, buf *eventstore.RowBuffer) {
	buf.Reset()

	sim := columns == eventstore.SimulationColumns

	nLeptons := 1
	if rng.Float64() < 0.15 {
		nLeptons = 2
	}
	for i := 0; i < nLeptons; i++ {
		pt := 20 + rng.ExpFloat64()*25
		if i > 0 {
			pt = 5 + rng.ExpFloat64()*10
		}
		flavour := int32(13)
		if i > 0 && rng.Float64() < 0.4 {
			flavour = 11
		}
		if rng.Float64() < 0.5 {
			flavour = -flavour
		}
		buf.Leptons.Pt = append(buf.Leptons.Pt, float32(pt))
		buf.Leptons.Eta = append(buf.Leptons.Eta, float32(rng.Float64()*4.8-2.4))
		buf.Leptons.Phi = append(buf.Leptons.Phi, float32(rng.Float64()*2*math.Pi-math.Pi))
		buf.Leptons.Isolation = append(buf.Leptons.Isolation, float32(math.Abs(rng.NormFloat64())*0.08))
		buf.Leptons.Flavour = append(buf.Leptons.Flavour, flavour)
	}

	nJets := 1 + rng.IntN(7)
	for i := 0; i < nJets; i++ {
		pt := float32(22 + rng.ExpFloat64()*28)
		eta := float32(rng.Float64()*5.6 - 2.8)
		phi := float32(rng.Float64()*2*math.Pi - math.Pi)
		flavour := jetFlavour(rng)
		csv := jetCSV(rng, flavour)

		buf.Jets.Pt = append(buf.Jets.Pt, pt)
		buf.Jets.Eta = append(buf.Jets.Eta, eta)
		buf.Jets.Phi = append(buf.Jets.Phi, phi)
		buf.Jets.BTag = append(buf.Jets.BTag, csv)
		buf.Jets.Flavour = append(buf.Jets.Flavour, flavour)

		if sim {
			// JEC moves the jet energy scale, not its direction.
			scale := float32(1.03 + 0.02*rng.Float64())
			buf.JetsJECUp.Pt = append(buf.JetsJECUp.Pt, pt*scale)
			buf.JetsJECUp.Eta = append(buf.JetsJECUp.Eta, eta)
			buf.JetsJECUp.Phi = append(buf.JetsJECUp.Phi, phi)
			buf.JetsJECUp.BTag = append(buf.JetsJECUp.BTag, csv)
			buf.JetsJECUp.Flavour = append(buf.JetsJECUp.Flavour, flavour)

			buf.JetsJECDown.Pt = append(buf.JetsJECDown.Pt, pt/scale)
			buf.JetsJECDown.Eta = append(buf.JetsJECDown.Eta, eta)
			buf.JetsJECDown.Phi = append(buf.JetsJECDown.Phi, phi)
			buf.JetsJECDown.BTag = append(buf.JetsJECDown.BTag, csv)
			buf.JetsJECDown.Flavour = append(buf.JetsJECDown.Flavour, flavour)
		}
	}

	metPt := 15 + rng.ExpFloat64()*30
	metPhi := wrapPhi(float64(buf.Leptons.Phi[0]) + math.Pi + rng.NormFloat64()*0.5)
	buf.MET.Pt = float32(metPt)
	buf.MET.Phi = float32(metPhi)

	buf.NumPV = int32(1 + rng.IntN(40))

	if sim {
		buf.METJECUp.Pt = float32(metPt * (1.02 + 0.03*rng.Float64()))
		buf.METJECUp.Phi = float32(metPhi)
		buf.METJECDown.Pt = float32(metPt * (0.94 + 0.03*rng.Float64()))
		buf.METJECDown.Phi = float32(metPhi)
		buf.RawWeight = float32(math.Exp(0.15 * rng.NormFloat64()))
	}
}

func jetFlavour(rng *rand.Rand) int32 {
	var flavour int32
	switch r := rng.Float64(); {
	case r < 0.12:
		flavour = 5
	case r < 0.22:
		flavour = 4
	case r < 0.60:
		flavour = 21
	default:
		flavour = int32(1 + rng.IntN(3))
	}
	if flavour != 21 && rng.Float64() < 0.5 {
		flavour = -flavour
	}
	return flavour
}

func jetCSV(rng *rand.Rand, flavour int32) float32 {
	// A few jets carry no discriminant at all.
	if rng.Float64() < 0.05 {
		return -1
	}
	csv := rng.Float64()
	if flavour == 5 || flavour == -5 {
		csv = 0.4 + 0.6*rng.Float64()
	}
	return float32(csv)
}

func wrapPhi(phi float64) float64 {
	return math.Mod(phi+3*math.Pi, 2*math.Pi) - math.Pi
}

// demoCalibration derives a mildly pt dependent calibration from the unit
// tables, shifting every non-nominal selection by a fixed amount so that
// systematic variations are visible in demo output.
func demoCalibration() btag.Calibration {
	shift := func(sel systematics.Selection) float64 {
		switch {
		case sel.IsNominal():
			return 0
		case sel.Direction == systematics.Up:
			return 0.015
		default:
			return -0.015
		}
	}

	cal := btag.UnitCalibration()
	for sel, rows := range cal.Bottom {
		for k := range rows {
			rows[k] = demoCell(0.92 + 0.01*float64(k) + shift(sel))
		}
	}
	for sel, rows := range cal.Charm {
		for k := range rows {
			rows[k] = demoCell(0.90 + 0.01*float64(k) + shift(sel))
		}
	}
	for sel, grid := range cal.Light {
		for k := range grid {
			for j := range grid[k] {
				grid[k][j] = demoCell(1.00 + 0.01*float64(k) - 0.005*float64(j) + shift(sel))
			}
		}
	}
	return cal
}

func demoCell(base float64) btag.WeightBins {
	return btag.WeightBins{
		Edges:   []float64{0, 0.244, 0.679, 0.898, 1.000001},
		Weights: []float64{1, base, base + 0.02, base + 0.05},
	}
}
