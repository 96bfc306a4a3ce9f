package protocols

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"dezoomify/internal/dezoomer"
	"dezoomify/internal/vec2d"
)

const IIIFName = "iiif"

const iiifInfo = "info.json"

// IIIF reads an IIIF image API info.json (version 2 or 3) and exposes one
// level per advertised scale factor.
type IIIF struct{}

type iiifImageInfo struct {
	ContextID string `json:"@id"`
	ID        string `json:"id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Tiles     []struct {
		Width        int   `json:"width"`
		Height       int   `json:"height"`
		ScaleFactors []int `json:"scaleFactors"`
	} `json:"tiles"`
}

func (d *IIIF) Name() string { return IIIFName }

func (d *IIIF) ZoomLevels(in *dezoomer.Input) ([]dezoomer.ZoomLevel, error) {
	if !strings.HasSuffix(in.URI, iiifInfo) {
		return nil, dezoomer.ErrWrongDezoomer
	}
	data, err := in.WithContents()
	if err != nil {
		return nil, err
	}
	var info iiifImageInfo
	if err := sonic.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid IIIF info.json: %w", err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid IIIF image size %dx%d", info.Width, info.Height)
	}

	id := info.ID
	if id == "" {
		id = info.ContextID
	}
	if id == "" {
		id = strings.TrimSuffix(in.URI, "/"+iiifInfo)
	}
	id = strings.TrimSuffix(id, "/")
	full := vec2d.Vec2d{X: info.Width, Y: info.Height}

	var levels []dezoomer.ZoomLevel
	seen := make(map[int]bool)
	for _, t := range info.Tiles {
		if t.Width <= 0 {
			continue
		}
		th := t.Height
		if th <= 0 {
			th = t.Width
		}
		for _, s := range t.ScaleFactors {
			if s <= 0 || seen[s] {
				continue
			}
			seen[s] = true
			levels = append(levels, &iiifLevel{
				id:       id,
				full:     full,
				scale:    s,
				tileSize: vec2d.Vec2d{X: t.Width, Y: th},
			})
		}
	}
	if len(levels) == 0 {
		// untiled server: the whole image in one request
		levels = append(levels, &iiifLevel{id: id, full: full, scale: 1, tileSize: full})
	}
	return levels, nil
}

type iiifLevel struct {
	id       string
	full     vec2d.Vec2d
	scale    int
	tileSize vec2d.Vec2d
}

func (l *iiifLevel) size() vec2d.Vec2d {
	return vec2d.Vec2d{X: ceilDiv(l.full.X, l.scale), Y: ceilDiv(l.full.Y, l.scale)}
}

func (l *iiifLevel) Name() string {
	s := l.size()
	return fmt.Sprintf("IIIF image %dx%d", s.X, s.Y)
}

func (l *iiifLevel) SizeHint() (vec2d.Vec2d, bool) { return l.size(), true }

func (l *iiifLevel) HTTPHeaders() map[string]string { return nil }

func (l *iiifLevel) Tiles() []dezoomer.TileResult {
	size := l.size()
	cols := ceilDiv(size.X, l.tileSize.X)
	rows := ceilDiv(size.Y, l.tileSize.Y)
	// region of one tile, in full resolution pixels
	span := vec2d.Vec2d{X: l.tileSize.X * l.scale, Y: l.tileSize.Y * l.scale}

	res := make([]dezoomer.TileResult, 0, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			x0, y0 := x*span.X, y*span.Y
			rw := min(span.X, l.full.X-x0)
			rh := min(span.Y, l.full.Y-y0)
			url := fmt.Sprintf("%s/%d,%d,%d,%d/%d,/0/default.jpg", l.id, x0, y0, rw, rh, ceilDiv(rw, l.scale))
			res = append(res, dezoomer.TileResult{Ref: dezoomer.TileReference{
				URL:      url,
				Position: vec2d.Vec2d{X: x * l.tileSize.X, Y: y * l.tileSize.Y},
			}})
		}
	}
	return res
}
