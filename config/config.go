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
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	BTag  BTagConfig  `mapstructure:"btag"`
	Hist  HistConfig  `mapstructure:"hist"`
}

// StoreConfig selects the event store location and read engine.
type StoreConfig struct {
	Dir    string `mapstructure:"dir"`
	Engine string `mapstructure:"engine"` // "parquet" or "arrow"
}

// BTagConfig controls b-tagging scale factor reweighting.
type BTagConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Calibration string `mapstructure:"calibration"` // path to a calibration YAML, empty for unit weights
}

// HistConfig holds the default binning for histogram output.
type HistConfig struct {
	Bins int     `mapstructure:"bins"`
	Lo   float64 `mapstructure:"lo"`
	Hi   float64 `mapstructure:"hi"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:    "./events",
			Engine: "parquet",
		},
		BTag: BTagConfig{
			Enabled: true,
		},
		Hist: HistConfig{
			Bins: 60,
			Lo:   0,
			Hi:   120,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "NTUPLERUNNER" and the dot character
// in keys is replaced by an underscore. For example, "store.engine" becomes
// "NTUPLERUNNER_STORE_ENGINE".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("NTUPLERUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
