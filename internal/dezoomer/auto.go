package dezoomer

import (
	"errors"
	"fmt"
)

var errNoLevels = errors.New("no zoom level found")

// auto tries each dezoomer in turn and answers with the first one that
// finds at least one zoom level.
type auto struct {
	dezoomers []Dezoomer
	current   int
	origin    *Input
	fetched   map[string][]byte
	served    map[string]bool // URIs the current dezoomer already received
	errs      []NamedError
}

// NewAuto aggregates dezoomers, tried in the given order.
func NewAuto(dezoomers ...Dezoomer) Dezoomer {
	return &auto{
		dezoomers: dezoomers,
		fetched:   make(map[string][]byte),
		served:    make(map[string]bool),
	}
}

func (a *auto) Name() string { return AutoName }

func (a *auto) ZoomLevels(in *Input) ([]ZoomLevel, error) {
	if a.origin == nil {
		a.origin = &Input{URI: in.URI, Contents: in.Contents}
	}
	if in.Contents != nil {
		a.fetched[in.URI] = in.Contents
		a.served[in.URI] = true
	}

	cur := &Input{URI: in.URI, Contents: in.Contents}
	for a.current < len(a.dezoomers) {
		d := a.dezoomers[a.current]
		levels, err := d.ZoomLevels(cur)
		if err == nil && len(levels) > 0 {
			return levels, nil
		}

		var nd *NeedsDataError
		if errors.As(err, &nd) {
			data, ok := a.fetched[nd.URI]
			if !ok {
				return nil, err
			}
			if !a.served[nd.URI] {
				a.served[nd.URI] = true
				cur = &Input{URI: nd.URI, Contents: data}
				continue
			}
			err = fmt.Errorf("requested %s again after receiving it", nd.URI)
		}
		if err == nil {
			err = errNoLevels
		}

		a.errs = append(a.errs, NamedError{Dezoomer: d.Name(), Err: err})
		a.current++
		a.served = make(map[string]bool)
		cur = &Input{URI: a.origin.URI, Contents: a.fetched[a.origin.URI]}
		if cur.Contents != nil {
			a.served[cur.URI] = true
		}
	}
	return nil, &NoCompatibleDezoomerError{Errors: a.errs}
}
