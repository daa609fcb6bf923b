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

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "./events", cfg.Store.Dir)
	require.Equal(t, "parquet", cfg.Store.Engine)
	require.True(t, cfg.BTag.Enabled)
	require.Empty(t, cfg.BTag.Calibration)
	require.Equal(t, 60, cfg.Hist.Bins)
	require.Equal(t, 0.0, cfg.Hist.Lo)
	require.Equal(t, 120.0, cfg.Hist.Hi)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NTUPLERUNNER_STORE_DIR", "/data/run2012")
	t.Setenv("NTUPLERUNNER_STORE_ENGINE", "arrow")
	t.Setenv("NTUPLERUNNER_BTAG_ENABLED", "false")
	t.Setenv("NTUPLERUNNER_BTAG_CALIBRATION", "/data/csv.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/data/run2012", cfg.Store.Dir)
	require.Equal(t, "arrow", cfg.Store.Engine)
	require.False(t, cfg.BTag.Enabled)
	require.Equal(t, "/data/csv.yaml", cfg.BTag.Calibration)
}

func TestLoadHistEnvVars(t *testing.T) {
	t.Setenv("NTUPLERUNNER_HIST_BINS", "120")
	t.Setenv("NTUPLERUNNER_HIST_HI", "240")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 120, cfg.Hist.Bins)
	require.Equal(t, 0.0, cfg.Hist.Lo)
	require.Equal(t, 240.0, cfg.Hist.Hi)
}

func TestLoadConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	contents := `
store:
  dir: /data/fromfile
  engine: arrow
hist:
  bins: 30
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(contents), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/data/fromfile", cfg.Store.Dir)
	require.Equal(t, "arrow", cfg.Store.Engine)
	require.Equal(t, 30, cfg.Hist.Bins)
	// Keys the file does not set keep their defaults.
	require.True(t, cfg.BTag.Enabled)
	require.Equal(t, 120.0, cfg.Hist.Hi)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	t.Chdir(t.TempDir())
	contents := `
store:
  dir: /data/fromfile
  engine: arrow
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(contents), 0644))
	t.Setenv("NTUPLERUNNER_STORE_ENGINE", "parquet")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "parquet", cfg.Store.Engine)
	require.Equal(t, "/data/fromfile", cfg.Store.Dir)
}
