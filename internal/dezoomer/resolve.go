package dezoomer

import (
	"context"
	"errors"
	"fmt"
)

// Fetcher returns the raw bytes behind an URI or a local path.
type Fetcher interface {
	Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error)
}

// TooManyRequestsError stops a dezoomer that keeps asking for more data.
type TooManyRequestsError struct {
	Limit int
	URI   string
}

func (e *TooManyRequestsError) Error() string {
	return fmt.Sprintf("gave up after %d discovery requests, the last one was for %s", e.Limit, e.URI)
}

// Resolve probes d until it returns zoom levels, fetching every URI it asks for.
// Fetches happen one at a time since each request depends on the previous answer.
// maxRequests <= 0 means no limit.
func Resolve(ctx context.Context, d Dezoomer, f Fetcher, uri string, maxRequests int) ([]ZoomLevel, error) {
	in := &Input{URI: uri}
	requests := 0
	for {
		levels, err := d.ZoomLevels(in)
		var nd *NeedsDataError
		if !errors.As(err, &nd) {
			return levels, err
		}
		if maxRequests > 0 && requests >= maxRequests {
			return nil, &TooManyRequestsError{Limit: maxRequests, URI: nd.URI}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := f.Fetch(ctx, nd.URI, nil)
		if err != nil {
			return nil, err
		}
		requests++
		if data == nil {
			data = []byte{}
		}
		in = &Input{URI: nd.URI, Contents: data}
	}
}
