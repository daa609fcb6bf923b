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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/ntuplerunner/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ntuplerunner",
	Short: "Analyze partitioned columnar event stores",
	Long:  `Generate, summarize, and histogram partitioned columnar event stores holding CMS open-data style ntuples.`,
}

// appConfig feeds flag defaults, so it has to exist before the command
// init functions run.
var appConfig = loadAppConfig()

func loadAppConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load configuration, using defaults", slog.Any("error", err))
		return config.Default()
	}
	return cfg
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
