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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/ntuplerunner/internal/eventreader"
	"github.com/cardinalhq/ntuplerunner/internal/eventstore"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print events from one partition as JSON lines",
		RunE: func(c *cobra.Command, _ []string) error {
			dir, err := c.Flags().GetString("store")
			if err != nil {
				return fmt.Errorf("failed to get store flag: %w", err)
			}
			partition, err := c.Flags().GetString("partition")
			if err != nil {
				return fmt.Errorf("failed to get partition flag: %w", err)
			}
			engine, err := c.Flags().GetString("engine")
			if err != nil {
				return fmt.Errorf("failed to get engine flag: %w", err)
			}
			simulation, err := c.Flags().GetBool("simulation")
			if err != nil {
				return fmt.Errorf("failed to get simulation flag: %w", err)
			}
			limit, err := c.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			return runDump(dir, partition, engine, simulation, limit)
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("store", appConfig.Store.Dir, "Event store directory")
	cmd.Flags().String("partition", "", "Partition to dump")
	cmd.Flags().String("engine", appConfig.Store.Engine, "Read engine, parquet or arrow")
	cmd.Flags().Bool("simulation", false, "Bind the JEC-variant columns and stored weights")
	cmd.Flags().Int("limit", 10, "Maximum number of events to print, 0 for all")
	if err := cmd.MarkFlagRequired("partition"); err != nil {
		panic(fmt.Errorf("failed to mark partition flag as required: %w", err))
	}
}

// The physics types carry no JSON tags, so the dump uses its own mirror
// structs to keep the output keys lowerCamel like the rest of the tool.
type dumpLepton struct {
	Flavour   int32   `json:"flavour"`
	Pt        float64 `json:"pt"`
	Eta       float64 `json:"eta"`
	Phi       float64 `json:"phi"`
	Isolation float64 `json:"isolation"`
}

type dumpJet struct {
	Pt      float64 `json:"pt"`
	Eta     float64 `json:"eta"`
	Phi     float64 `json:"phi"`
	BTag    float64 `json:"btag"`
	Flavour int32   `json:"flavour"`
}

type dumpMET struct {
	Pt  float64 `json:"pt"`
	Phi float64 `json:"phi"`
}

type dumpEvent struct {
	Partition string       `json:"partition"`
	Leptons   []dumpLepton `json:"leptons"`
	Jets      []dumpJet    `json:"jets"`
	MET       dumpMET      `json:"met"`
	NumPV     int          `json:"numPV"`
	Weight    float64      `json:"weight"`
}

func runDump(dir, partition, engine string, simulation bool, limit int) error {
	eng, err := eventstore.ParseEngine(engine)
	if err != nil {
		return err
	}

	store, err := eventstore.Open(dir, eventstore.WithEngine(eng))
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", dir, err)
	}

	rdr, err := eventreader.NewReader(store, []string{partition}, eventreader.Config{Simulation: simulation})
	if err != nil {
		return err
	}
	defer func() {
		_ = rdr.Close()
	}()

	enc := json.NewEncoder(os.Stdout)
	for n := 0; limit <= 0 || n < limit; n++ {
		if err := rdr.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if err := enc.Encode(currentDumpEvent(rdr)); err != nil {
			return err
		}
	}
	return nil
}

func currentDumpEvent(rdr *eventreader.Reader) dumpEvent {
	ev := dumpEvent{
		Partition: rdr.Partition(),
		NumPV:     rdr.NumPV(),
		Weight:    rdr.Weight(),
	}
	for _, l := range rdr.Leptons() {
		ev.Leptons = append(ev.Leptons, dumpLepton{
			Flavour:   l.Flavour,
			Pt:        l.Pt,
			Eta:       l.Eta,
			Phi:       l.Phi,
			Isolation: l.Isolation,
		})
	}
	for _, j := range rdr.Jets() {
		ev.Jets = append(ev.Jets, dumpJet{
			Pt:      j.Pt,
			Eta:     j.Eta,
			Phi:     j.Phi,
			BTag:    j.BTag,
			Flavour: j.Flavour,
		})
	}
	met := rdr.MET()
	ev.MET = dumpMET{Pt: met.Pt, Phi: met.Phi}
	return ev
}
