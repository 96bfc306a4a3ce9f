// Package selector picks the zoom level to download.
package selector

import (
	"errors"

	"dezoomify/internal/dezoomer"
)

// ErrNoLevels means discovery worked but returned an empty list.
var ErrNoLevels = errors.New("a zoomable image was found, but it did not contain any zoom level")

// Policy describes which level the user wants when several exist.
// Zero MaxWidth/MaxHeight means no bound.
type Policy struct {
	Largest   bool
	MaxWidth  int
	MaxHeight int
}

// Chooser picks a level when the policy cannot, usually by asking the user.
type Chooser interface {
	Choose(levels []dezoomer.ZoomLevel) (int, error)
}

// Choose returns the level matching p, falling back to c.
func Choose(levels []dezoomer.ZoomLevel, p Policy, c Chooser) (dezoomer.ZoomLevel, error) {
	switch len(levels) {
	case 0:
		return nil, ErrNoLevels
	case 1:
		return levels[0], nil
	}

	if i := p.best(levels); i >= 0 {
		return levels[i], nil
	}
	if c == nil {
		return nil, errors.New("several zoom levels are available and none matches the selection policy")
	}
	i, err := c.Choose(levels)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(levels) {
		return nil, errors.New("chosen level is out of range")
	}
	return levels[i], nil
}

// best returns the index of the matching level with the greatest area, or -1.
// The first of equally large levels wins.
func (p Policy) best(levels []dezoomer.ZoomLevel) int {
	if !p.Largest && p.MaxWidth <= 0 && p.MaxHeight <= 0 {
		return -1
	}
	best := -1
	var bestArea int64
	for i, l := range levels {
		size, ok := l.SizeHint()
		if !ok {
			continue
		}
		if !p.Largest {
			if p.MaxWidth > 0 && size.X >= p.MaxWidth {
				continue
			}
			if p.MaxHeight > 0 && size.Y >= p.MaxHeight {
				continue
			}
		}
		if best < 0 || size.Area() > bestArea {
			best, bestArea = i, size.Area()
		}
	}
	return best
}
