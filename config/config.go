// Package config parses the TOML-shaped grid and datasource configuration
// this module is driven by, including the $ENV_VAR substitution pass a
// config file goes through before being handed to the TOML decoder.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/atlasdatatech/vtile/grid"
)

// GridCfg selects either one of the two built-in grids by name, or a fully
// user-specified one.
type GridCfg struct {
	Predefined *string      `toml:"predefined"`
	User       *GridUserCfg `toml:"user"`
}

// GridUserCfg is the TOML shape of a custom grid definition.
type GridUserCfg struct {
	Width       uint16      `toml:"width"`
	Height      uint16      `toml:"height"`
	Extent      grid.Extent `toml:"extent"`
	SRID        int         `toml:"srid"`
	Units       string      `toml:"units"`
	Resolutions []float64   `toml:"resolutions"`
	Origin      string      `toml:"origin"`
}

// DatasourceCfg is the TOML shape of a PostGIS connection.
type DatasourceCfg struct {
	Name   string  `toml:"name"`
	DBConn string  `toml:"dbconn"`
	Pool   *uint16 `toml:"pool"`
}

// Config is the top-level parsed config file.
type Config struct {
	Grid        GridCfg         `toml:"grid"`
	Datasources []DatasourceCfg `toml:"datasource"`
}

// ToGrid resolves a GridCfg into a concrete *grid.Grid.
func (c GridCfg) ToGrid() (*grid.Grid, error) {
	if c.Predefined != nil {
		switch *c.Predefined {
		case "wgs84":
			return grid.WGS84(), nil
		case "web_mercator":
			return grid.WebMercator(), nil
		default:
			return nil, fmt.Errorf("config: unknown predefined grid %q", *c.Predefined)
		}
	}
	if c.User == nil {
		return nil, fmt.Errorf("config: grid config has neither predefined nor user set")
	}
	return grid.New(grid.UserGridConfig{
		Width:       c.User.Width,
		Height:      c.User.Height,
		Extent:      c.User.Extent,
		SRID:        c.User.SRID,
		Units:       c.User.Units,
		Resolutions: c.User.Resolutions,
		Origin:      c.User.Origin,
	})
}

// envVarPattern matches $NAME (a shell-style identifier: a letter or
// underscore followed by any number of letters, digits, or underscores) as
// found in a config file, for substitution from the process environment
// before TOML parsing. A leading digit after the $ (e.g. "$32.78") is left
// untouched, since no environment variable can be named that way.
var envVarPattern = regexp.MustCompile(`\$[A-Za-z_]\w*`)

// replaceEnvVars reads r fully and replaces every $NAME token with the
// value of the like-named environment variable (empty string if unset).
func replaceEnvVars(r io.Reader) (io.Reader, error) {
	contents, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	replaced := envVarPattern.ReplaceAllFunc(contents, func(match []byte) []byte {
		name := string(match[1:])
		return []byte(os.Getenv(name))
	})
	return bytes.NewReader(replaced), nil
}

// Load reads and parses a TOML config file from path, substituting
// environment variables first.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %q: %w", path, err)
	}
	defer f.Close()

	r, err := replaceEnvVars(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("config: substituting env vars in %q: %w", path, err)
	}

	var cfg Config
	if _, err := toml.DecodeReader(r, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return &cfg, nil
}

// GenGridConfig renders the TOML fragment for one of the two built-in
// grids, the way a user would paste it into a config file. Round-tripping
// it through Load + ToGrid must reproduce the same *grid.Grid.
func GenGridConfig(name string) (string, error) {
	switch name {
	case "wgs84", "web_mercator":
		return fmt.Sprintf("[grid]\npredefined = %q\n", name), nil
	default:
		return "", fmt.Errorf("config: unknown predefined grid %q", name)
	}
}
