// Package vec2d holds the integer pair used for image sizes and tile positions.
package vec2d

import "fmt"

// Vec2d is either a size (X = width, Y = height) or a position.
// Components are never negative.
type Vec2d struct {
	X int
	Y int
}

// Area is X*Y as int64 so large canvases don't overflow on 32 bit platforms.
func (v Vec2d) Area() int64 {
	return int64(v.X) * int64(v.Y)
}

func (v Vec2d) Add(o Vec2d) Vec2d {
	return Vec2d{X: v.X + o.X, Y: v.Y + o.Y}
}

// Max returns the component-wise maximum.
func (v Vec2d) Max(o Vec2d) Vec2d {
	r := v
	if o.X > r.X {
		r.X = o.X
	}
	if o.Y > r.Y {
		r.Y = o.Y
	}
	return r
}

// Fits reports whether v is no larger than bound on both axes.
func (v Vec2d) Fits(bound Vec2d) bool {
	return v.X <= bound.X && v.Y <= bound.Y
}

func (v Vec2d) String() string {
	return fmt.Sprintf("x=%d y=%d", v.X, v.Y)
}
