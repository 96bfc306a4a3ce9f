// Package canvas assembles decoded tiles into a single image.
//
// A canvas created with a known size rejects tiles that do not fit in it.
// A canvas of unknown size grows to the bounding box of the tiles it receives;
// its backing buffer grows geometrically, so the final image can use up to four
// times its own size in memory while tiles are still arriving.
//
// When tiles overlap, the last one added wins. With concurrent downloads the
// arrival order, and so the overlapping pixels, may differ between runs.
package canvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"dezoomify/internal/vec2d"
)

var ErrFinalized = errors.New("canvas already finalized")

// MaxArea is the largest number of pixels a canvas accepts, 4 GiB of RGBA.
var MaxArea int64 = 1 << 30

// SizeError is returned for a canvas that cannot be allocated.
type SizeError struct {
	Size vec2d.Vec2d
	Max  int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("an image of %dx%d pixels is too large, at most %d pixels can be assembled", e.Size.X, e.Size.Y, e.Max)
}

func checkSize(size vec2d.Vec2d) error {
	if size.X < 0 || size.Y < 0 || size.Area() > MaxArea {
		return &SizeError{Size: size, Max: MaxArea}
	}
	return nil
}

// Tile is a downloaded tile ready to be placed.
type Tile struct {
	Position vec2d.Vec2d
	Image    image.Image
}

// Size of the decoded tile.
func (t *Tile) Size() vec2d.Vec2d {
	b := t.Image.Bounds()
	return vec2d.Vec2d{X: b.Dx(), Y: b.Dy()}
}

// DecodeError wraps a tile whose bytes are not an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid image error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeTile decodes PNG, JPEG, GIF, BMP, TIFF or WebP bytes.
func DecodeTile(pos vec2d.Vec2d, data []byte) (*Tile, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &Tile{Position: pos, Image: img}, nil
}

// TileCopyError is returned for a tile that does not fit on the canvas.
type TileCopyError struct {
	Position   vec2d.Vec2d
	TileSize   vec2d.Vec2d
	CanvasSize vec2d.Vec2d
}

func (e *TileCopyError) Error() string {
	return fmt.Sprintf("unable to copy a %dx%d tile at position %d,%d on a canvas of size %dx%d",
		e.TileSize.X, e.TileSize.Y, e.Position.X, e.Position.Y, e.CanvasSize.X, e.CanvasSize.Y)
}

// Canvas is safe for concurrent use.
type Canvas struct {
	mu        sync.Mutex
	img       *image.RGBA
	extent    vec2d.Vec2d
	fixed     bool
	finalized bool
}

// New creates a canvas. When known is false, size is ignored and the canvas
// grows with its tiles. A known size above MaxArea is a *SizeError.
func New(size vec2d.Vec2d, known bool) (*Canvas, error) {
	c := &Canvas{fixed: known}
	if known {
		if err := checkSize(size); err != nil {
			return nil, err
		}
		c.extent = size
		c.img = image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	} else {
		c.img = image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	return c, nil
}

// AddTile draws t on the canvas. A failed call leaves the canvas unchanged.
func (c *Canvas) AddTile(t *Tile) error {
	size := t.Size()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return ErrFinalized
	}
	end := t.Position.Add(size)
	if t.Position.X < 0 || t.Position.Y < 0 || (c.fixed && !end.Fits(c.extent)) {
		return &TileCopyError{Position: t.Position, TileSize: size, CanvasSize: c.extent}
	}
	if !c.fixed {
		if err := c.grow(end); err != nil {
			return err
		}
	}

	b := t.Image.Bounds()
	dst := image.Rect(t.Position.X, t.Position.Y, end.X, end.Y)
	draw.Draw(c.img, dst, t.Image, b.Min, draw.Src)
	return nil
}

// grow makes sure the extent covers end. Must hold c.mu.
func (c *Canvas) grow(end vec2d.Vec2d) error {
	extent := c.extent.Max(end)
	if err := checkSize(extent); err != nil {
		return err
	}
	c.extent = extent
	b := c.img.Bounds()
	if extent.X <= b.Dx() && extent.Y <= b.Dy() {
		return nil
	}
	capacity := vec2d.Vec2d{X: b.Dx(), Y: b.Dy()}
	for capacity.X < extent.X {
		capacity.X = max(capacity.X*2, extent.X)
	}
	for capacity.Y < extent.Y {
		capacity.Y = max(capacity.Y*2, extent.Y)
	}
	// doubling may overshoot the limit, the extent itself does not
	if capacity.Area() > MaxArea {
		capacity = extent
	}
	img := image.NewRGBA(image.Rect(0, 0, capacity.X, capacity.Y))
	draw.Draw(img, b, c.img, b.Min, draw.Src)
	c.img = img
	return nil
}

// Size is the current extent of the canvas.
func (c *Canvas) Size() vec2d.Vec2d {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extent
}

// Image finalizes the canvas and returns its content. AddTile fails afterwards.
func (c *Canvas) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = true
	return c.img.SubImage(image.Rect(0, 0, c.extent.X, c.extent.Y))
}
