package protocols

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"gopkg.in/yaml.v3"

	"dezoomify/internal/dezoomer"
	"dezoomify/internal/vec2d"
)

const XYZName = "xyz"

// TileSize is the default size of slippy map tiles.
const TileSize = 256

const (
	ZoomMin = 0
	ZoomMax = 20
)

// Tile encodings of a layer.
const (
	Identity = "identity"
	GZIP     = "gzip" // encoding = gzip
)

// just inside the web mercator limit, so the first row stays at y=0
const maxLatitude = 85.05112

// XYZ stitches a slippy map layer. The input is a YAML file:
//
//	url_template: https://tile.example.org/{z}/{x}/{y}.png
//	min_zoom: 2
//	max_zoom: 5
//	region: france.geojson
//	encoding: gzip
//
// region is an optional GeoJSON feature collection restricting the tiles,
// fetched after the YAML file. Without it the whole world grid is downloaded.
// encoding gzip is for servers that store tiles compressed and do not say so
// in Content-Encoding.
type XYZ struct {
	layer   *xyzLayer
	baseURI string
}

type xyzLayer struct {
	URLTemplate string            `yaml:"url_template"`
	MinZoom     int               `yaml:"min_zoom"`
	MaxZoom     int               `yaml:"max_zoom"`
	TileSize    int               `yaml:"tile_size"`
	Region      string            `yaml:"region"`
	Encoding    string            `yaml:"encoding"`
	Headers     map[string]string `yaml:"headers"`
}

func (d *XYZ) Name() string { return XYZName }

func (d *XYZ) ZoomLevels(in *dezoomer.Input) ([]dezoomer.ZoomLevel, error) {
	if d.layer == nil {
		return d.readLayer(in)
	}

	regionURI := dezoomer.ResolveRelative(d.baseURI, d.layer.Region)
	if in.URI != regionURI || in.Contents == nil {
		return nil, dezoomer.NeedsData(regionURI)
	}
	c, err := loadCollection(in.Contents)
	if err != nil {
		return nil, err
	}
	return d.levels(c), nil
}

func (d *XYZ) readLayer(in *dezoomer.Input) ([]dezoomer.ZoomLevel, error) {
	if !isYAML(in.URI) {
		return nil, dezoomer.ErrWrongDezoomer
	}
	data, err := in.WithContents()
	if err != nil {
		return nil, err
	}
	var layer xyzLayer
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("invalid YAML configuration file: %w", err)
	}
	if layer.URLTemplate == "" {
		return nil, fmt.Errorf("%w: no url_template", dezoomer.ErrWrongDezoomer)
	}
	if layer.MinZoom < ZoomMin || layer.MaxZoom > ZoomMax || layer.MinZoom > layer.MaxZoom {
		return nil, fmt.Errorf("invalid zoom range %d-%d, zooms go from %d to %d", layer.MinZoom, layer.MaxZoom, ZoomMin, ZoomMax)
	}
	switch layer.Encoding {
	case "", Identity, GZIP:
	default:
		return nil, fmt.Errorf("unknown tile encoding %q, expected %s or %s", layer.Encoding, Identity, GZIP)
	}
	if layer.TileSize <= 0 {
		layer.TileSize = TileSize
	}
	d.layer = &layer
	d.baseURI = in.URI

	if layer.Region == "" {
		return d.levels(nil), nil
	}
	return nil, dezoomer.NeedsData(dezoomer.ResolveRelative(in.URI, layer.Region))
}

func loadCollection(data []byte) (orb.Collection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal region: %w", err)
	}
	var collection orb.Collection
	for _, f := range fc.Features {
		collection = append(collection, f.Geometry)
	}
	if len(collection) == 0 {
		return nil, fmt.Errorf("region has no feature")
	}
	return collection, nil
}

func (d *XYZ) levels(c orb.Collection) []dezoomer.ZoomLevel {
	var levels []dezoomer.ZoomLevel
	for z := d.layer.MinZoom; z <= d.layer.MaxZoom; z++ {
		levels = append(levels, newXYZLevel(d.layer, c, maptile.Zoom(z)))
	}
	return levels
}

// xyzLevel covers the tiles of collection at one zoom, or the whole grid
// when collection is nil.
type xyzLevel struct {
	layer      *xyzLayer
	collection orb.Collection
	zoom       maptile.Zoom
	min, max   maptile.Tile
}

func newXYZLevel(layer *xyzLayer, c orb.Collection, z maptile.Zoom) *xyzLevel {
	if c == nil {
		last := uint32(1)<<uint32(z) - 1
		return &xyzLevel{
			layer: layer,
			zoom:  z,
			min:   maptile.New(0, 0, z),
			max:   maptile.New(last, last, z),
		}
	}
	b := c.Bound()
	return &xyzLevel{
		layer:      layer,
		collection: c,
		zoom:       z,
		min:        tileAt(orb.Point{b.Min[0], b.Max[1]}, z),
		max:        tileAt(orb.Point{b.Max[0], b.Min[1]}, z),
	}
}

// tileAt is maptile.At clamped to the tiles that exist at zoom z.
func tileAt(p orb.Point, z maptile.Zoom) maptile.Tile {
	if p[1] > maxLatitude {
		p[1] = maxLatitude
	}
	if p[1] < -maxLatitude {
		p[1] = -maxLatitude
	}
	t := maptile.At(p, z)
	last := uint32(1)<<uint32(z) - 1
	if t.X > last {
		t.X = last
	}
	if t.Y > last {
		t.Y = last
	}
	return t
}

func (l *xyzLevel) Name() string {
	var count int64
	if l.collection == nil {
		count = int64(l.max.X-l.min.X+1) * int64(l.max.Y-l.min.Y+1)
	} else {
		count = tilecover.CollectionCount(l.collection, l.zoom)
	}
	return fmt.Sprintf("zoom %d (%d tiles)", l.zoom, count)
}

func (l *xyzLevel) SizeHint() (vec2d.Vec2d, bool) {
	ts := l.layer.TileSize
	return vec2d.Vec2d{
		X: int(l.max.X-l.min.X+1) * ts,
		Y: int(l.max.Y-l.min.Y+1) * ts,
	}, true
}

func (l *xyzLevel) HTTPHeaders() map[string]string { return l.layer.Headers }

func (l *xyzLevel) Tiles() []dezoomer.TileResult {
	if l.collection == nil {
		return l.grid()
	}
	tilelist := make(chan maptile.Tile, 1024)
	go tilecover.CollectionChannel(l.collection, l.zoom, tilelist)

	var res []dezoomer.TileResult
	for t := range tilelist {
		if t.X < l.min.X || t.X > l.max.X || t.Y < l.min.Y || t.Y > l.max.Y {
			res = append(res, dezoomer.TileResult{Err: fmt.Errorf("tile %d/%d/%d is outside the region", t.Z, t.X, t.Y)})
			continue
		}
		res = append(res, dezoomer.TileResult{Ref: l.ref(t)})
	}
	return res
}

func (l *xyzLevel) grid() []dezoomer.TileResult {
	res := make([]dezoomer.TileResult, 0, int(l.max.X-l.min.X+1)*int(l.max.Y-l.min.Y+1))
	for y := l.min.Y; y <= l.max.Y; y++ {
		for x := l.min.X; x <= l.max.X; x++ {
			res = append(res, dezoomer.TileResult{Ref: l.ref(maptile.New(x, y, l.zoom))})
		}
	}
	return res
}

func (l *xyzLevel) ref(t maptile.Tile) dezoomer.TileReference {
	ts := l.layer.TileSize
	return dezoomer.TileReference{
		URL: tileURL(l.layer.URLTemplate, t),
		Position: vec2d.Vec2d{
			X: int(t.X-l.min.X) * ts,
			Y: int(t.Y-l.min.Y) * ts,
		},
	}
}

// PostProcess decompresses gzip encoded tiles.
func (l *xyzLevel) PostProcess(ref dezoomer.TileReference, data []byte) ([]byte, error) {
	if l.layer.Encoding != GZIP {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// tileURL fills {x}, {y}, {z} and the TMS row {-y} in template.
func tileURL(template string, t maptile.Tile) string {
	tmsY := uint32(1)<<uint32(t.Z) - 1 - t.Y
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(int(t.X)),
		"{-y}", strconv.Itoa(int(tmsY)),
		"{y}", strconv.Itoa(int(t.Y)),
		"{z}", strconv.Itoa(int(t.Z)),
	)
	return r.Replace(template)
}
