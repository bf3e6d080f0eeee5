// Package registry composes a grid and a datasource into the single
// entry point a tile pipeline needs: register layers once, then retrieve
// features for any tile address.
package registry

import (
	"fmt"

	"github.com/atlasdatatech/vtile/config"
	"github.com/atlasdatatech/vtile/datasource"
	"github.com/atlasdatatech/vtile/datasource/postgis"
	"github.com/atlasdatatech/vtile/grid"
	"github.com/atlasdatatech/vtile/internal/log"
	"github.com/atlasdatatech/vtile/layer"
)

// Tileset binds a grid and a set of layers to one connected datasource.
type Tileset struct {
	Name   string
	Grid   *grid.Grid
	Source datasource.Datasource

	layers map[string]*layer.Layer
}

// NewTileset builds a Tileset from an already-connected datasource.
func NewTileset(name string, g *grid.Grid, source datasource.Datasource) *Tileset {
	return &Tileset{Name: name, Grid: g, Source: source, layers: make(map[string]*layer.Layer)}
}

// LoadTilesets reads a TOML config file from path (substituting $ENV_VAR
// references via config.Load) and builds one connected Tileset per
// datasource it declares, all sharing that file's grid.
func LoadTilesets(path string) ([]*Tileset, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("registry: loading config %q: %w", path, err)
	}

	tilesets := make([]*Tileset, 0, len(cfg.Datasources))
	for _, dsCfg := range cfg.Datasources {
		ts, err := NewTilesetFromConfig(dsCfg.Name, cfg.Grid, dsCfg)
		if err != nil {
			return nil, err
		}
		tilesets = append(tilesets, ts)
	}
	return tilesets, nil
}

// NewTilesetFromConfig builds a grid and a connected PostGIS datasource
// straight from parsed configuration, the way a tile-serving process
// bootstraps a tileset at startup.
func NewTilesetFromConfig(name string, gridCfg config.GridCfg, dsCfg config.DatasourceCfg) (*Tileset, error) {
	g, err := gridCfg.ToGrid()
	if err != nil {
		return nil, fmt.Errorf("registry: building grid: %w", err)
	}

	provider, err := postgis.New(dsCfg)
	if err != nil {
		return nil, fmt.Errorf("registry: building datasource %q: %w", dsCfg.Name, err)
	}
	source, err := provider.Connected()
	if err != nil {
		return nil, fmt.Errorf("registry: connecting datasource %q: %w", dsCfg.Name, err)
	}

	return NewTileset(name, g, source), nil
}

// AddLayer registers a layer and prepares its per-zoom queries against
// the tileset's grid SRID.
func (t *Tileset) AddLayer(l *layer.Layer) error {
	if _, exists := t.layers[l.Name]; exists {
		return fmt.Errorf("registry: tileset %q already has layer %q", t.Name, l.Name)
	}
	if err := t.Source.PrepareQueries(t.Name, l, t.Grid.SRID); err != nil {
		return fmt.Errorf("registry: preparing layer %q: %w", l.Name, err)
	}
	t.layers[l.Name] = l
	log.Debugf("registry: tileset %q registered layer %q", t.Name, l.Name)
	return nil
}

// Layer looks up a previously-registered layer by name.
func (t *Tileset) Layer(name string) (*layer.Layer, bool) {
	l, ok := t.layers[name]
	return l, ok
}

// RetrieveFeatures streams every feature of layerName visible at tile
// (x, y, z) through sink, returning the feature count.
func (t *Tileset) RetrieveFeatures(layerName string, x, y uint32, z uint8, sink func(datasource.Feature) error) (uint64, error) {
	l, ok := t.layers[layerName]
	if !ok {
		return 0, fmt.Errorf("registry: tileset %q has no layer %q", t.Name, layerName)
	}
	ext := t.Grid.TileExtentXYZ(x, y, z)
	return t.Source.RetrieveFeatures(t.Name, l, ext, z, t.Grid, sink)
}
