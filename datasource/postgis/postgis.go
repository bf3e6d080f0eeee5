// Package postgis implements datasource.Datasource against a PostgreSQL/
// PostGIS database: pool management, per-layer per-zoom query
// preparation, and cursor-based feature streaming.
package postgis

import (
	"crypto/tls"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx"

	"github.com/atlasdatatech/vtile/config"
	"github.com/atlasdatatech/vtile/datasource"
	"github.com/atlasdatatech/vtile/geomtype"
	"github.com/atlasdatatech/vtile/grid"
	"github.com/atlasdatatech/vtile/internal/log"
	"github.com/atlasdatatech/vtile/layer"
	"github.com/atlasdatatech/vtile/sqlquery"
)

const (
	defaultPoolSize = 8
	fetchSize       = 50
	acquireTimeout  = 30 * time.Second
)

type queryKey struct {
	tileset string
	layer   string
}

// Provider is a PostGIS-backed datasource.Datasource. The zero-value
// returned by New describes configuration only; Connected dials the pool.
type Provider struct {
	connString string
	poolSize   int

	pool    *pgx.ConnPool
	queries map[queryKey]map[uint8]*sqlquery.SqlQuery
}

// New builds an unconnected Provider from a parsed DatasourceCfg.
func New(cfg config.DatasourceCfg) (*Provider, error) {
	if cfg.DBConn == "" {
		return nil, fmt.Errorf("postgis: dbconn is required")
	}
	poolSize := defaultPoolSize
	if cfg.Pool != nil {
		poolSize = int(*cfg.Pool)
	}
	return &Provider{connString: cfg.DBConn, poolSize: poolSize}, nil
}

// Connected dials the database, retrying once with TLS required if the
// plain connection attempt fails with "unable to initialize connections";
// any other connection error is returned as is.
func (p *Provider) Connected() (datasource.Datasource, error) {
	connConfig, err := pgx.ParseConnectionString(p.connString)
	if err != nil {
		return nil, fmt.Errorf("postgis: parsing connection string: %w", err)
	}
	connConfig.RuntimeParams = map[string]string{
		"default_transaction_read_only": "TRUE",
		"application_name":              "vtile",
	}

	poolConfig := pgx.ConnPoolConfig{
		ConnConfig:     connConfig,
		MaxConnections: p.poolSize,
		AcquireTimeout: acquireTimeout,
	}
	pool, err := pgx.NewConnPool(poolConfig)
	if err != nil {
		if !strings.Contains(err.Error(), "unable to initialize connections") {
			return nil, fmt.Errorf("postgis: connecting: %w", err)
		}
		log.Infof("postgis: connection failed without TLS (%v), retrying with TLS required", err)
		connConfig.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		poolConfig.ConnConfig = connConfig
		pool, err = pgx.NewConnPool(poolConfig)
		if err != nil {
			return nil, fmt.Errorf("postgis: connecting: %w", err)
		}
	}

	return &Provider{
		connString: p.connString,
		poolSize:   p.poolSize,
		pool:       pool,
		queries:    make(map[queryKey]map[uint8]*sqlquery.SqlQuery),
	}, nil
}

// DetectLayers enumerates every entry in geometry_columns as a Layer.
// When detectTypes is true, a "GEOMETRY" column's actual type is sniffed
// with a DISTINCT GeometryType(...) scan; otherwise it is left generic.
func (p *Provider) DetectLayers(detectTypes bool) ([]layer.Layer, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("postgis: not connected")
	}
	rows, err := p.pool.Query("SELECT f_table_schema, f_table_name, f_geometry_column, srid, type FROM geometry_columns ORDER BY f_table_schema, f_table_name DESC")
	if err != nil {
		return nil, fmt.Errorf("postgis: detecting layers: %w", err)
	}
	defer rows.Close()

	var layers []layer.Layer
	for rows.Next() {
		var schema, table, geomCol, geomType string
		var srid int
		if err := rows.Scan(&schema, &table, &geomCol, &srid, &geomType); err != nil {
			return nil, fmt.Errorf("postgis: scanning geometry_columns row: %w", err)
		}

		tableName := fmt.Sprintf("%q", table)
		if schema != "public" {
			tableName = fmt.Sprintf("%q.%q", schema, table)
		}

		if geomType == "GEOMETRY" {
			if detectTypes {
				if t, ok := p.detectSingleGeometryType(tableName, geomCol); ok {
					geomType = t
				} else {
					geomType = "GEOMETRY"
				}
			}
		}

		l := layer.Layer{
			Name:          table,
			TableName:     &tableName,
			GeometryField: &geomCol,
			GeometryType:  &geomType,
			SRID:          &srid,
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

// detectSingleGeometryType returns the column's unique geometry type, or
// ok=false if the column holds a mix of types.
func (p *Provider) detectSingleGeometryType(tableName, geomCol string) (string, bool) {
	sql := fmt.Sprintf("SELECT DISTINCT GeometryType(%s) FROM %s", geomCol, tableName)
	rows, err := p.pool.Query(sql)
	if err != nil {
		log.Warnf("postgis: detecting geometry type for %s.%s: %v", tableName, geomCol, err)
		return "", false
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			continue
		}
		types = append(types, t)
	}
	if len(types) != 1 {
		return "", false
	}
	return types[0], true
}

var boxPattern = regexp.MustCompile(`(?i)BOX\(([^,]+),([^)]+)\)`)

// extentQuery runs sql (expected to select a single "extent" geometry
// column) and parses its bounding box from the PostGIS box2d text form.
func (p *Provider) extentQuery(sql string) (*grid.Extent, error) {
	row := p.pool.QueryRow(sql)
	var box string
	if err := row.Scan(&box); err != nil {
		return nil, fmt.Errorf("postgis: reading extent: %w", err)
	}
	m := boxPattern.FindStringSubmatch(box)
	if m == nil {
		return nil, fmt.Errorf("postgis: unparseable extent box %q", box)
	}
	min := strings.Fields(m[1])
	max := strings.Fields(m[2])
	if len(min) != 2 || len(max) != 2 {
		return nil, fmt.Errorf("postgis: unparseable extent box %q", box)
	}
	minX, err1 := strconv.ParseFloat(min[0], 64)
	minY, err2 := strconv.ParseFloat(min[1], 64)
	maxX, err3 := strconv.ParseFloat(max[0], 64)
	maxY, err4 := strconv.ParseFloat(max[1], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, fmt.Errorf("postgis: unparseable extent box %q", box)
	}
	return &grid.Extent{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}, nil
}

// LayerExtent returns the layer's data extent, reprojected into WGS84.
// Layers with a custom query or unknown SRID have no detectable extent.
func (p *Provider) LayerExtent(l *layer.Layer, gridSRID int) (*grid.Extent, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("postgis: not connected")
	}
	srid := l.SRIDOrZero()
	if l.NoTransform {
		srid = gridSRID
	}
	if len(l.Queries) != 0 || srid <= 0 || l.TableName == nil {
		return nil, nil
	}
	sql := fmt.Sprintf(
		"SELECT Box2D(ST_Transform(ST_SetSRID(ST_Extent(%s),%d),4326)) AS extent FROM %s",
		l.GeometryFieldName(), srid, *l.TableName,
	)
	return p.extentQuery(sql)
}

// ExtentFromWGS84 reprojects a WGS84 extent into destSRID.
func (p *Provider) ExtentFromWGS84(ext grid.Extent, destSRID int) (*grid.Extent, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("postgis: not connected")
	}
	sql := fmt.Sprintf(
		"SELECT Box2D(ST_Transform(ST_MakeEnvelope(%v,%v,%v,%v,4326),%d)) AS extent",
		ext.MinX, ext.MinY, ext.MaxX, ext.MaxY, destSRID,
	)
	return p.extentQuery(sql)
}

// detectColumns inspects the non-geometry columns a query/table returns,
// via a parameter-stripped PREPARE, casting NUMERIC to FLOAT8 and every
// other non-scalar type to TEXT.
func (p *Provider) detectColumns(l *layer.Layer, userSQL string, hasUserSQL bool) ([]sqlquery.ColumnInfo, error) {
	if p.pool == nil {
		return nil, nil
	}
	query := userSQL
	if !hasUserSQL {
		query = fmt.Sprintf("SELECT * FROM %s", *l.TableName)
	}
	query = strings.NewReplacer(
		"!bbox!", "ST_MakeEnvelope(0,0,0,0,3857)",
		"!zoom!", "0",
		"!pixel_width!", "0",
		"!scale_denominator!", "0",
	).Replace(query)
	query = fmt.Sprintf("SELECT * FROM (%s) AS _cols LIMIT 0", query)

	rows, err := p.pool.Query(query)
	if err != nil {
		return nil, fmt.Errorf("postgis: detecting columns: %w", err)
	}
	defer rows.Close()

	var cols []sqlquery.ColumnInfo
	for _, fd := range rows.FieldDescriptions() {
		if fd.Name == l.GeometryFieldName() {
			continue
		}
		cast := ""
		switch geomtype.OID(fd.DataType) {
		case geomtype.OIDVarchar, geomtype.OIDText, geomtype.OIDBPCharArr,
			geomtype.OIDFloat4, geomtype.OIDFloat8, geomtype.OIDInt2,
			geomtype.OIDInt4, geomtype.OIDInt8, geomtype.OIDBool:
			// no cast needed
		case geomtype.OIDNumeric:
			cast = "FLOAT8"
		default:
			cast = "TEXT"
		}
		cols = append(cols, sqlquery.ColumnInfo{Name: fd.Name, Cast: cast})
	}
	return cols, nil
}

// PrepareQueries builds and caches the per-zoom SQL for a layer, filling
// any zoom gap a user query doesn't cover with the automatic table query.
func (p *Provider) PrepareQueries(tileset string, l *layer.Layer, gridSRID int) error {
	if l.GeometryField == nil {
		return fmt.Errorf("postgis: layer %q: geometry_field undefined", l.Name)
	}
	if len(l.Queries) == 0 && l.TableName == nil {
		return fmt.Errorf("postgis: layer %q: table_name undefined", l.Name)
	}

	minZoom, maxZoom := l.MinZoom(), l.MaxZoom(22)
	byZoom := make(map[uint8]*sqlquery.SqlQuery)

	for _, zq := range l.Queries {
		cols, err := p.detectColumns(l, zq.SQL, true)
		if err != nil {
			return err
		}
		zMax := maxZoom
		if zq.MaxZoom != nil {
			zMax = *zq.MaxZoom
		}
		for z := zq.MinZoom; z <= zMax; z++ {
			q, err := sqlquery.Build(l, gridSRID, z, cols)
			if err != nil {
				return fmt.Errorf("postgis: layer %q zoom %d: %w", l.Name, z, err)
			}
			if q != nil {
				byZoom[z] = q
			}
		}
	}

	hasGaps := false
	for z := minZoom; z <= maxZoom; z++ {
		if _, ok := byZoom[z]; !ok {
			hasGaps = true
			break
		}
	}

	if hasGaps && l.TableName != nil {
		cols, err := p.detectColumns(l, "", false)
		if err != nil {
			return err
		}
		for z := minZoom; z <= maxZoom; z++ {
			if _, ok := byZoom[z]; ok {
				continue
			}
			q, err := sqlquery.Build(l, gridSRID, z, cols)
			if err != nil {
				return fmt.Errorf("postgis: layer %q zoom %d: %w", l.Name, z, err)
			}
			if q != nil {
				byZoom[z] = q
			}
		}
	}

	if p.queries == nil {
		p.queries = make(map[queryKey]map[uint8]*sqlquery.SqlQuery)
	}
	p.queries[queryKey{tileset: tileset, layer: l.Name}] = byZoom
	return nil
}

// RetrieveFeatures streams every feature matching (layer, ext, zoom)
// through sink, via a server-side cursor opened inside a transaction.
func (p *Provider) RetrieveFeatures(tileset string, l *layer.Layer, ext grid.Extent, zoom uint8, g *grid.Grid, sink func(datasource.Feature) error) (uint64, error) {
	if p.pool == nil {
		return 0, fmt.Errorf("postgis: not connected")
	}
	query, ok := p.queries[queryKey{tileset: tileset, layer: l.Name}][zoom]
	if !ok || query == nil {
		return 0, nil
	}

	args := make([]interface{}, 0, len(query.Params)+3)
	for _, param := range query.Params {
		switch param {
		case sqlquery.ParamBbox:
			args = append(args, ext.MinX, ext.MinY, ext.MaxX, ext.MaxY)
		case sqlquery.ParamZoom:
			args = append(args, int32(zoom))
		case sqlquery.ParamPixelWidth:
			args = append(args, g.PixelWidth(zoom))
		case sqlquery.ParamScaleDenominator:
			args = append(args, g.ScaleDenominator(zoom))
		}
	}

	tx, err := p.pool.Begin()
	if err != nil {
		return 0, fmt.Errorf("postgis: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cursorName := "vtile_cursor"
	declareSQL := fmt.Sprintf("DECLARE %s CURSOR FOR %s", cursorName, query.SQL)
	if _, err := tx.Exec(declareSQL, args...); err != nil {
		log.Errorf("postgis: declaring cursor for layer %q (sql: %s, params: %v): %v", l.Name, query.SQL, args, err)
		return 0, nil
	}

	limit := l.QueryLimitOrZero()
	var count uint64
	fetchSQL := fmt.Sprintf("FETCH %d FROM %s", fetchSize, cursorName)

	for {
		rows, err := tx.Query(fetchSQL)
		if err != nil {
			log.Errorf("postgis: fetching from cursor for layer %q (sql: %s, params: %v): %v", l.Name, query.SQL, args, err)
			return count, nil
		}
		fdescs := rows.FieldDescriptions()

		fetched := 0
		for rows.Next() {
			fetched++
			vals, err := rows.Values()
			if err != nil {
				rows.Close()
				log.Errorf("postgis: reading row for layer %q (sql: %s, params: %v): %v", l.Name, query.SQL, args, err)
				return count, nil
			}
			feature, err := rowToFeature(l, fdescs, vals)
			if err != nil {
				log.Warnf("postgis: layer %q: %v", l.Name, err)
				continue
			}
			if err := sink(feature); err != nil {
				rows.Close()
				return count, err
			}
			count++
			if limit != 0 && count == limit {
				log.Infof("postgis: layer %q limited to %d features at zoom %d (query_limit reached)", l.Name, limit, zoom)
				rows.Close()
				return count, nil
			}
		}
		rows.Close()
		if fetched < fetchSize {
			break
		}
	}

	return count, nil
}

// rowToFeature decodes one cursor row into a datasource.Feature, skipping
// the geometry and fid columns out of the attribute set.
func rowToFeature(l *layer.Layer, fdescs []pgx.FieldDescription, vals []interface{}) (datasource.Feature, error) {
	geomIdx := -1
	for i, fd := range fdescs {
		if fd.Name == l.GeometryFieldName() {
			geomIdx = i
			break
		}
	}
	if geomIdx < 0 {
		return datasource.Feature{}, fmt.Errorf("geometry field %q not found in result", l.GeometryFieldName())
	}
	raw, ok := vals[geomIdx].([]byte)
	if !ok || len(raw) == 0 {
		return datasource.Feature{}, fmt.Errorf("empty geometry for field %q", l.GeometryFieldName())
	}
	g, err := geomtype.DecodeGeometry(raw, l.GeometryTypeName())
	if err != nil {
		return datasource.Feature{}, err
	}

	feature := datasource.Feature{Geometry: g, Attributes: make(map[string]geomtype.AttrValue)}

	for i, fd := range fdescs {
		if i == geomIdx || fd.Name == l.FidFieldName() {
			continue
		}
		v, ok, err := geomtype.Decode(geomtype.OID(fd.DataType), vals[i])
		if err != nil {
			log.Warnf("skipping field %q: %v", fd.Name, err)
			continue
		}
		if !ok {
			continue
		}
		feature.Attributes[fd.Name] = v
	}

	if l.FidField != nil {
		for i, fd := range fdescs {
			if fd.Name != *l.FidField {
				continue
			}
			if v, ok, err := geomtype.Decode(geomtype.OID(fd.DataType), vals[i]); err == nil && ok && v.Kind == geomtype.AttrInt {
				fid := uint64(v.Int64)
				feature.FID = &fid
			}
		}
	}

	return feature, nil
}
