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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/ntuplerunner/internal/btag"
	"github.com/cardinalhq/ntuplerunner/internal/eventreader"
	"github.com/cardinalhq/ntuplerunner/internal/eventstore"
	"github.com/cardinalhq/ntuplerunner/internal/hist"
	"github.com/cardinalhq/ntuplerunner/internal/idgen"
	"github.com/cardinalhq/ntuplerunner/internal/logctx"
	"github.com/cardinalhq/ntuplerunner/internal/physics"
	"github.com/cardinalhq/ntuplerunner/internal/systematics"
)

func init() {
	var p histParams

	cmd := &cobra.Command{
		Use:   "hist",
		Short: "Fill transverse W mass histograms from an event store",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "ntuplerunner-hist"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()
			return runHist(doneCtx, p)
		},
	}

	cmd.Flags().StringVar(&p.storeDir, "store", appConfig.Store.Dir, "Event store directory")
	cmd.Flags().StringVar(&p.groupsPath, "groups", "", "YAML file naming the process groups to fill")
	cmd.Flags().StringVar(&p.outPath, "out", "mtw.json", "Output JSON path")
	cmd.Flags().StringVar(&p.engine, "engine", appConfig.Store.Engine, "Read engine (parquet or arrow)")
	cmd.Flags().StringVar(&p.systematic, "systematic", "nominal", `Systematic selection, e.g. "jec:up"`)
	cmd.Flags().BoolVar(&p.noBTag, "no-btag-reweighting", !appConfig.BTag.Enabled, "Disable b-tag scale factor reweighting")
	cmd.Flags().StringVar(&p.calibration, "calibration", appConfig.BTag.Calibration, "b-tag calibration YAML (empty for unit weights)")
	cmd.Flags().IntVar(&p.bins, "bins", appConfig.Hist.Bins, "Histogram bin count")
	cmd.Flags().Float64Var(&p.axisMin, "min", appConfig.Hist.Lo, "Histogram lower edge in GeV")
	cmd.Flags().Float64Var(&p.axisMax, "max", appConfig.Hist.Hi, "Histogram upper edge in GeV")
	_ = cmd.MarkFlagRequired("groups")

	rootCmd.AddCommand(cmd)
}

type histParams struct {
	storeDir    string
	groupsPath  string
	outPath     string
	engine      string
	systematic  string
	noBTag      bool
	calibration string
	bins        int
	axisMin     float64
	axisMax     float64
}

const groupsVersion = 1

// processGroup names one histogram and the partitions that feed it.
type processGroup struct {
	Name       string   `yaml:"name"`
	Data       bool     `yaml:"data,omitempty"`
	Partitions []string `yaml:"partitions"`
}

type groupsFile struct {
	Version int            `yaml:"version"`
	Groups  []processGroup `yaml:"groups"`
}

func loadGroups(path string) ([]processGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}
	var gf groupsFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse groups file %s: %w", path, err)
	}
	if gf.Version != groupsVersion {
		return nil, fmt.Errorf("unsupported groups file version %d in %s, expected %d", gf.Version, path, groupsVersion)
	}
	if len(gf.Groups) == 0 {
		return nil, fmt.Errorf("groups file %s defines no groups", path)
	}

	names := mapset.NewSet[string]()
	partitions := mapset.NewSet[string]()
	for _, grp := range gf.Groups {
		if grp.Name == "" {
			return nil, fmt.Errorf("groups file %s contains a group without a name", path)
		}
		if !names.Add(grp.Name) {
			return nil, fmt.Errorf("duplicate group name %q", grp.Name)
		}
		if len(grp.Partitions) == 0 {
			return nil, fmt.Errorf("group %q lists no partitions", grp.Name)
		}
		for _, part := range grp.Partitions {
			if !partitions.Add(part) {
				return nil, fmt.Errorf("partition %q appears in more than one group", part)
			}
		}
	}
	return gf.Groups, nil
}

type histOutput struct {
	RunID      int64             `json:"runID"`
	StoreID    uuid.UUID         `json:"storeID"`
	Store      string            `json:"store"`
	Systematic string            `json:"systematic"`
	CreatedAt  time.Time         `json:"createdAt"`
	Histograms []*hist.Histogram `json:"histograms"`
}

func runHist(ctx context.Context, p histParams) error {
	ll := slog.Default()

	engine, err := eventstore.ParseEngine(p.engine)
	if err != nil {
		return err
	}
	sel, err := systematics.ParseSelection(p.systematic)
	if err != nil {
		return err
	}
	groups, err := loadGroups(p.groupsPath)
	if err != nil {
		return err
	}

	store, err := eventstore.Open(p.storeDir, eventstore.WithEngine(engine))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	var weighter eventreader.JetWeighter
	if p.calibration != "" {
		rw, err := btag.LoadCSVReweighter(p.calibration)
		if err != nil {
			return fmt.Errorf("failed to load b-tag calibration: %w", err)
		}
		weighter = rw
	} else {
		weighter = btag.NewCSVReweighter(btag.UnitCalibration())
	}

	histograms := make([]*hist.Histogram, len(groups))
	for i, grp := range groups {
		h, err := hist.New(grp.Name, p.bins, p.axisMin, p.axisMax)
		if err != nil {
			return err
		}
		histograms[i] = h
	}

	// Fill every group even when one fails, so a run over many samples
	// reports all problems at once.
	errs := make([]error, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, grp := range groups {
		g.Go(func() error {
			groupCtx := logctx.With(gctx,
				slog.String("group", grp.Name),
				slog.String("opID", idgen.ShortID()))
			errs[i] = fillGroupHistogram(groupCtx, store, grp, histograms[i], sel, p.noBTag, weighter)
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for i, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("group %q: %w", groups[i].Name, err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	out := histOutput{
		RunID:      myRunID,
		StoreID:    store.ID(),
		Store:      store.Location(),
		Systematic: sel.String(),
		CreatedAt:  time.Now().UTC(),
		Histograms: histograms,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := os.WriteFile(p.outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p.outPath, err)
	}

	ll.Info("Wrote histograms",
		slog.String("path", p.outPath),
		slog.Int("groups", len(groups)),
		slog.String("systematic", sel.String()))
	return nil
}

func fillGroupHistogram(
	ctx context.Context,
	store eventstore.Store,
	grp processGroup,
	h *hist.Histogram,
	sel systematics.Selection,
	noBTag bool,
	weighter eventreader.JetWeighter,
) error {
	ctx, span := tracer.Start(ctx, "hist.fillGroup", trace.WithAttributes(commonAttributes.ToSlice()...))
	defer span.End()

	ll := logctx.FromContext(ctx)

	cfg := eventreader.Config{Simulation: !grp.Data}
	if cfg.Simulation {
		cfg.Weighter = weighter
	}
	rdr, err := eventreader.NewReader(store, grp.Partitions, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdr.Close(); err != nil {
			ll.Error("Failed to close reader", slog.Any("error", err))
		}
	}()

	rdr.SetSystematics(sel.Type, sel.Direction)
	if noBTag {
		rdr.SetBTagReweighting(false)
	}

	t0 := time.Now()
	var events, selected int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rdr.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		events++
		if !passesSelection(rdr.Leptons(), rdr.Jets()) {
			continue
		}
		mtw := transverseWMass(rdr.Leptons()[0].Candidate, rdr.MET().Candidate)
		h.Fill(mtw, rdr.Weight())
		selected++
	}

	groupDuration.Record(ctx, time.Since(t0).Seconds(),
		metric.WithAttributeSet(commonAttributes),
		metric.WithAttributes(attribute.String("group", grp.Name)))
	eventsProcessedCounter.Add(ctx, events,
		metric.WithAttributeSet(commonAttributes),
		metric.WithAttributes(attribute.String("group", grp.Name)))

	ll.Info("Filled histogram",
		slog.Int64("events", events),
		slog.Int64("selected", selected),
		slog.Float64("integral", h.Integral()),
		slog.Duration("elapsed", time.Since(t0)))
	return nil
}

// passesSelection applies the single-muon selection: one isolated muon in
// the tracker acceptance, no second hard lepton, and at least four hard
// central jets. Collections arrive pt sorted, so the jet scan stops at the
// first soft jet.
func passesSelection(leptons []physics.Lepton, jets []physics.Jet) bool {
	if len(leptons) == 0 {
		return false
	}
	lead := leptons[0]
	if lead.Flavour != 13 && lead.Flavour != -13 {
		return false
	}
	if lead.Pt <= 26 || math.Abs(lead.Eta) >= 2.1 || lead.Isolation >= 0.12 {
		return false
	}
	if len(leptons) > 1 && leptons[1].Pt > 15 {
		return false
	}

	hardJets := 0
	for _, j := range jets {
		if j.Pt <= 30 {
			break
		}
		if math.Abs(j.Eta) < 2.4 {
			hardJets++
		}
	}
	return hardJets >= 4
}

// transverseWMass computes the W boson transverse mass from the lepton and
// the missing transverse energy.
func transverseWMass(lepton, met physics.Candidate) float64 {
	sumPt := lepton.Pt + met.Pt
	px := lepton.Px() + met.Px()
	py := lepton.Py() + met.Py()
	v := sumPt*sumPt - px*px - py*py
	if v < 0 {
		// Rounding can push the argument a hair negative when the lepton
		// and MET are exactly back to back.
		v = 0
	}
	return math.Sqrt(v)
}
