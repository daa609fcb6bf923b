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
	"os"
	"text/tabwriter"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/ntuplerunner/internal/eventstore"
)

func init() {
	var storeDir string
	var engineName string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Print per partition statistics for an event store",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "ntuplerunner-summarize"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()
			return runSummarize(doneCtx, storeDir, engineName, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", appConfig.Store.Dir, "Event store directory")
	cmd.Flags().StringVar(&engineName, "engine", appConfig.Store.Engine, "Read engine (parquet or arrow)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(cmd)
}

type partitionSummary struct {
	Partition string  `json:"partition"`
	Events    int64   `json:"events"`
	FileSize  int64   `json:"fileSize"`
	Digest    string  `json:"digest"`
	JetPtP50  float64 `json:"jetPtP50"`
	JetPtP90  float64 `json:"jetPtP90"`
	JetPtP99  float64 `json:"jetPtP99"`
	LepPtP50  float64 `json:"lepPtP50"`
	LepPtP90  float64 `json:"lepPtP90"`
	LepPtP99  float64 `json:"lepPtP99"`
}

func runSummarize(ctx context.Context, dir, engineName string, jsonOutput bool) error {
	engine, err := eventstore.ParseEngine(engineName)
	if err != nil {
		return err
	}
	store, err := eventstore.Open(dir, eventstore.WithEngine(engine))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	names, err := store.Partitions()
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	slog.Info("Summarizing store",
		slog.String("store", store.Location()),
		slog.String("storeID", store.ID().String()),
		slog.String("description", store.Description()),
		slog.Int("partitions", len(names)))

	summaries := make([]partitionSummary, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := summarizePartition(store, dir, name)
		if err != nil {
			return fmt.Errorf("partition %q: %w", name, err)
		}
		summaries = append(summaries, s)
	}

	if jsonOutput {
		return printSummaryJSON(summaries)
	}
	return printSummaryTable(summaries)
}

// summarizePartition reads the partition through the common column set, so
// it works for simulation and data partitions alike.
func summarizePartition(store eventstore.Store, dir, name string) (partitionSummary, error) {
	src, err := store.OpenPartition(name, eventstore.DataColumns)
	if err != nil {
		return partitionSummary{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Error("Failed to close partition", slog.String("partition", name), slog.Any("error", err))
		}
	}()

	jetPt, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return partitionSummary{}, fmt.Errorf("failed to create sketch: %w", err)
	}
	lepPt, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return partitionSummary{}, fmt.Errorf("failed to create sketch: %w", err)
	}

	var buf eventstore.RowBuffer
	var events int64
	for {
		if err := src.ReadRow(&buf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return partitionSummary{}, err
		}
		events++
		// DDSketch only holds positive values, which pt always is.
		for _, pt := range buf.Jets.Pt {
			if pt > 0 {
				_ = jetPt.Add(float64(pt))
			}
		}
		for _, pt := range buf.Leptons.Pt {
			if pt > 0 {
				_ = lepPt.Add(float64(pt))
			}
		}
	}

	quantile := func(sk *ddsketch.DDSketch, q float64) float64 {
		v, err := sk.GetValueAtQuantile(q)
		if err != nil {
			return 0 // empty sketch
		}
		return v
	}

	size, digest, err := digestFile(eventstore.PartitionPath(dir, name))
	if err != nil {
		return partitionSummary{}, err
	}

	return partitionSummary{
		Partition: name,
		Events:    events,
		FileSize:  size,
		Digest:    digest,
		JetPtP50:  quantile(jetPt, 0.5),
		JetPtP90:  quantile(jetPt, 0.9),
		JetPtP99:  quantile(jetPt, 0.99),
		LepPtP50:  quantile(lepPt, 0.5),
		LepPtP90:  quantile(lepPt, 0.9),
		LepPtP99:  quantile(lepPt, 0.99),
	}, nil
}

func digestFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = f.Close()
	}()

	d := xxhash.New()
	size, err := io.Copy(d, f)
	if err != nil {
		return 0, "", fmt.Errorf("failed to digest %s: %w", path, err)
	}
	return size, fmt.Sprintf("%016x", d.Sum64()), nil
}

func printSummaryTable(summaries []partitionSummary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "PARTITION\tEVENTS\tBYTES\tJETPT_P50\tJETPT_P90\tJETPT_P99\tLEPPT_P50\tLEPPT_P90\tLEPPT_P99\tDIGEST"); err != nil {
		return err
	}
	for _, s := range summaries {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%s\n",
			s.Partition, s.Events, s.FileSize, s.JetPtP50, s.JetPtP90, s.JetPtP99,
			s.LepPtP50, s.LepPtP90, s.LepPtP99, s.Digest); err != nil {
			return err
		}
	}
	return w.Flush()
}

func printSummaryJSON(summaries []partitionSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
