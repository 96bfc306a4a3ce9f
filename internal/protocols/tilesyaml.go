package protocols

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dezoomify/internal/dezoomer"
	"dezoomify/internal/vec2d"
)

const TilesYAMLName = "tiles-yaml"

// TilesYAML reads an explicit list of tiles from a YAML file:
//
//	name: my image
//	width: 512
//	height: 512
//	headers:
//	  Referer: http://example.com/
//	tiles:
//	  - "0 0 http://example.com/tile_0_0.jpg"
//	  - "256 0 tile_1_0.jpg"
//
// Relative tile URLs are resolved against the YAML file.
type TilesYAML struct{}

type tilesFile struct {
	Name    string            `yaml:"name"`
	Width   int               `yaml:"width"`
	Height  int               `yaml:"height"`
	Headers map[string]string `yaml:"headers"`
	Tiles   []string          `yaml:"tiles"`
}

// MalformedTileError is a tiles entry that is not "x y url".
type MalformedTileError struct {
	Entry string
}

func (e *MalformedTileError) Error() string {
	return fmt.Sprintf("malformed tile string: '%s' expected 'x y url'", e.Entry)
}

func (d *TilesYAML) Name() string { return TilesYAMLName }

func (d *TilesYAML) ZoomLevels(in *dezoomer.Input) ([]dezoomer.ZoomLevel, error) {
	if !isYAML(in.URI) {
		return nil, dezoomer.ErrWrongDezoomer
	}
	data, err := in.WithContents()
	if err != nil {
		return nil, err
	}
	var f tilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML configuration file: %w", err)
	}
	if f.Tiles == nil {
		return nil, fmt.Errorf("%w: no tiles list", dezoomer.ErrWrongDezoomer)
	}
	if f.Name == "" {
		f.Name = in.URI
	}
	return []dezoomer.ZoomLevel{&tileListLevel{file: f, base: in.URI}}, nil
}

type tileListLevel struct {
	file tilesFile
	base string
}

func (l *tileListLevel) Name() string { return l.file.Name }

func (l *tileListLevel) SizeHint() (vec2d.Vec2d, bool) {
	if l.file.Width <= 0 || l.file.Height <= 0 {
		return vec2d.Vec2d{}, false
	}
	return vec2d.Vec2d{X: l.file.Width, Y: l.file.Height}, true
}

func (l *tileListLevel) HTTPHeaders() map[string]string { return l.file.Headers }

func (l *tileListLevel) Tiles() []dezoomer.TileResult {
	res := make([]dezoomer.TileResult, 0, len(l.file.Tiles))
	for _, entry := range l.file.Tiles {
		ref, err := parseTile(entry)
		if err != nil {
			res = append(res, dezoomer.TileResult{Err: err})
			continue
		}
		ref.URL = dezoomer.ResolveRelative(l.base, ref.URL)
		res = append(res, dezoomer.TileResult{Ref: ref})
	}
	return res
}

func parseTile(entry string) (dezoomer.TileReference, error) {
	parts := strings.Fields(entry)
	if len(parts) != 3 {
		return dezoomer.TileReference{}, &MalformedTileError{Entry: entry}
	}
	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return dezoomer.TileReference{}, &MalformedTileError{Entry: entry}
	}
	return dezoomer.TileReference{URL: parts[2], Position: vec2d.Vec2d{X: x, Y: y}}, nil
}
