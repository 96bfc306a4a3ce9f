package protocols

import (
	"encoding/xml"
	"fmt"
	"strings"

	"dezoomify/internal/dezoomer"
	"dezoomify/internal/vec2d"
)

const ZoomifyName = "zoomify"

const zoomifyProperties = "ImageProperties.xml"

// tiles per TileGroup directory
const zoomifyGroupSize = 256

// Zoomify reads .../ImageProperties.xml and exposes one level per halving of
// the image, down to a single tile.
type Zoomify struct{}

type imageProperties struct {
	XMLName  xml.Name `xml:"IMAGE_PROPERTIES"`
	Width    int      `xml:"WIDTH,attr"`
	Height   int      `xml:"HEIGHT,attr"`
	TileSize int      `xml:"TILESIZE,attr"`
}

func (d *Zoomify) Name() string { return ZoomifyName }

func (d *Zoomify) ZoomLevels(in *dezoomer.Input) ([]dezoomer.ZoomLevel, error) {
	if !strings.HasSuffix(in.URI, zoomifyProperties) {
		return nil, dezoomer.ErrWrongDezoomer
	}
	data, err := in.WithContents()
	if err != nil {
		return nil, err
	}
	var props imageProperties
	if err := xml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("invalid zoomify properties: %w", err)
	}
	if props.Width <= 0 || props.Height <= 0 {
		return nil, fmt.Errorf("invalid zoomify image size %dx%d", props.Width, props.Height)
	}
	if props.TileSize <= 0 {
		props.TileSize = TileSize
	}
	base := strings.TrimSuffix(in.URI, zoomifyProperties)

	// sizes from the full image down to one that fits in a tile
	sizes := []vec2d.Vec2d{{X: props.Width, Y: props.Height}}
	for s := sizes[0]; s.X > props.TileSize || s.Y > props.TileSize; {
		s = vec2d.Vec2d{X: ceilDiv(s.X, 2), Y: ceilDiv(s.Y, 2)}
		sizes = append(sizes, s)
	}

	levels := make([]dezoomer.ZoomLevel, 0, len(sizes))
	offset := 0
	for z := len(sizes) - 1; z >= 0; z-- {
		zl := &zoomifyLevel{
			base:     base,
			zoom:     len(sizes) - 1 - z,
			size:     sizes[z],
			tileSize: props.TileSize,
			offset:   offset,
		}
		offset += zl.cols() * zl.rows()
		levels = append(levels, zl)
	}
	return levels, nil
}

type zoomifyLevel struct {
	base     string
	zoom     int
	size     vec2d.Vec2d
	tileSize int
	// number of tiles in all smaller levels, used to find the tile group
	offset int
}

func (l *zoomifyLevel) cols() int { return ceilDiv(l.size.X, l.tileSize) }
func (l *zoomifyLevel) rows() int { return ceilDiv(l.size.Y, l.tileSize) }

func (l *zoomifyLevel) Name() string {
	return fmt.Sprintf("Zoomify image %dx%d", l.size.X, l.size.Y)
}

func (l *zoomifyLevel) SizeHint() (vec2d.Vec2d, bool) { return l.size, true }

func (l *zoomifyLevel) HTTPHeaders() map[string]string { return nil }

func (l *zoomifyLevel) Tiles() []dezoomer.TileResult {
	cols, rows := l.cols(), l.rows()
	res := make([]dezoomer.TileResult, 0, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			group := (l.offset + y*cols + x) / zoomifyGroupSize
			res = append(res, dezoomer.TileResult{Ref: dezoomer.TileReference{
				URL:      fmt.Sprintf("%sTileGroup%d/%d-%d-%d.jpg", l.base, group, l.zoom, x, y),
				Position: vec2d.Vec2d{X: x * l.tileSize, Y: y * l.tileSize},
			}})
		}
	}
	return res
}
