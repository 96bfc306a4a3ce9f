// Package dezoomer defines how tile-serving protocols plug into the engine.
//
// A Dezoomer never does network I/O itself. When it needs a remote document it
// returns NeedsData(uri); Resolve fetches the bytes and probes again with them
// attached to the Input.
package dezoomer

import (
	"errors"
	"fmt"
	"strings"

	"dezoomify/internal/vec2d"
)

// ErrWrongDezoomer is returned when an input obviously belongs to another protocol.
var ErrWrongDezoomer = errors.New("this dezoomer cannot handle this input")

// Input is what a dezoomer currently knows: an URI and, once fetched, its bytes.
type Input struct {
	URI      string
	Contents []byte
}

// WithContents returns the contents, or a NeedsData error for the input URI
// when they have not been fetched yet.
func (in *Input) WithContents() ([]byte, error) {
	if in.Contents == nil {
		return nil, NeedsData(in.URI)
	}
	return in.Contents, nil
}

// Dezoomer is a tile-serving protocol implementation.
type Dezoomer interface {
	Name() string
	ZoomLevels(in *Input) ([]ZoomLevel, error)
}

// ZoomLevel is one resolution of the image, as exposed by a protocol.
type ZoomLevel interface {
	Name() string
	// SizeHint is the size of the full image at this level, if known.
	SizeHint() (vec2d.Vec2d, bool)
	// HTTPHeaders must be sent with every tile request of this level.
	HTTPHeaders() map[string]string
	Tiles() []TileResult
}

// PostProcessor is implemented by levels whose tile bytes must be transformed
// before they can be decoded.
type PostProcessor interface {
	PostProcess(ref TileReference, data []byte) ([]byte, error)
}

// TileReference tells where a tile is fetched from and where it goes on the canvas.
type TileReference struct {
	URL      string
	Position vec2d.Vec2d
}

// TileResult is one item of a tile enumeration. Items with Err set are skipped.
type TileResult struct {
	Ref TileReference
	Err error
}

// NeedsDataError asks the caller to fetch URI and probe again with its contents.
type NeedsDataError struct {
	URI string
}

func (e *NeedsDataError) Error() string {
	return fmt.Sprintf("need to download data from %s", e.URI)
}

// NeedsData builds a *NeedsDataError.
func NeedsData(uri string) error {
	return &NeedsDataError{URI: uri}
}

// NoSuchDezoomerError is returned by the registry for unknown names.
type NoSuchDezoomerError struct {
	Name string
}

func (e *NoSuchDezoomerError) Error() string {
	return fmt.Sprintf("no such dezoomer: %s", e.Name)
}

// NamedError is the failure of one dezoomer tried by auto.
type NamedError struct {
	Dezoomer string
	Err      error
}

// NoCompatibleDezoomerError aggregates the failure of every dezoomer tried by auto.
type NoCompatibleDezoomerError struct {
	Errors []NamedError
}

func (e *NoCompatibleDezoomerError) Error() string {
	var b strings.Builder
	b.WriteString("tried all of the dezoomers, none succeeded. They returned the following errors:")
	for _, ne := range e.Errors {
		fmt.Fprintf(&b, "\n - %s: %v", ne.Dezoomer, ne.Err)
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *NoCompatibleDezoomerError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, ne := range e.Errors {
		errs = append(errs, ne.Err)
	}
	return errs
}
