// Package download fetches every tile of a zoom level and assembles them.
package download

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dezoomify/internal/canvas"
	"dezoomify/internal/dezoomer"
)

// ErrNoTile means every tile of the level failed.
var ErrNoTile = errors.New("could not get any tile for the image")

// Fetcher returns the bytes of a tile.
type Fetcher interface {
	Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error)
}

// Observer is told about every finished tile attempt, successful or not.
// Calls are serialized and done increases by one each time.
type Observer interface {
	TileDone(done, total int, ref dezoomer.TileReference, err error)
}

// TileError is the failure of a single tile.
type TileError struct {
	URL string
	Err error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("error with tile %s: %v", e.URL, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }

// PostProcessError is the failure of a level's PostProcess on a downloaded tile.
type PostProcessError struct {
	Err error
}

func (e *PostProcessError) Error() string {
	return fmt.Sprintf("unable to process the downloaded tile: %v", e.Err)
}

func (e *PostProcessError) Unwrap() error { return e.Err }

type Options struct {
	// Workers is the number of tiles downloaded at the same time.
	// Zero or less uses the number of CPUs.
	Workers int
	// Delay is waited before starting each tile download.
	Delay    time.Duration
	Observer Observer
	Logger   logrus.FieldLogger
}

// Result of a level download with at least one tile.
type Result struct {
	Total     int
	Succeeded int
	Canvas    *canvas.Canvas
}

// Partial reports whether some tiles are missing from the canvas.
func (r *Result) Partial() bool {
	return r.Succeeded < r.Total
}

func (r *Result) Summary() string {
	if !r.Partial() {
		return "Downloaded all tiles."
	}
	return fmt.Sprintf("Successfully downloaded %d tiles out of %d", r.Succeeded, r.Total)
}

type task struct {
	headers map[string]string
	post    dezoomer.PostProcessor
	fetcher Fetcher
	canvas  *canvas.Canvas
	opts    Options
	log     logrus.FieldLogger

	mu        sync.Mutex
	total     int
	done      int
	succeeded int
}

// Level downloads the tiles of level into a new canvas. Failed tiles are
// logged and skipped; it only fails when no tile at all could be placed.
func Level(ctx context.Context, level dezoomer.ZoomLevel, f Fetcher, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	workerCount := opts.Workers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	// checked before enumerating: a level too large to assemble can have too many tiles to list
	c, err := canvas.New(level.SizeHint())
	if err != nil {
		return nil, err
	}

	var refs []dezoomer.TileReference
	for _, tr := range level.Tiles() {
		if tr.Err != nil {
			logger.Warnf("skipping tile: %s", tr.Err)
			continue
		}
		refs = append(refs, tr.Ref)
	}

	t := &task{
		headers: level.HTTPHeaders(),
		fetcher: f,
		canvas:  c,
		opts:    opts,
		log:     logger,
		total:   len(refs),
	}
	t.post, _ = level.(dezoomer.PostProcessor)
	logger.Infof("level %s: %d tiles, %d workers", level.Name(), t.total, workerCount)

	workers := make(chan struct{}, workerCount)
	var wg sync.WaitGroup
	canceled := false
dispatch:
	for _, ref := range refs {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		select {
		case workers <- struct{}{}:
			if opts.Delay > 0 {
				time.Sleep(opts.Delay)
			}
			wg.Add(1)
			go func(ref dezoomer.TileReference) {
				defer func() {
					wg.Done()
					<-workers
				}()
				t.report(ref, t.fetchTile(ctx, ref))
			}(ref)
		case <-ctx.Done():
			logger.Infof("level %s got canceled", level.Name())
			canceled = true
			break dispatch
		}
	}
	wg.Wait()

	if canceled {
		return nil, ctx.Err()
	}
	if t.succeeded == 0 {
		return nil, ErrNoTile
	}
	return &Result{Total: t.total, Succeeded: t.succeeded, Canvas: t.canvas}, nil
}

func (t *task) fetchTile(ctx context.Context, ref dezoomer.TileReference) error {
	start := time.Now()
	data, err := t.fetcher.Fetch(ctx, ref.URL, t.headers)
	if err != nil {
		return &TileError{URL: ref.URL, Err: err}
	}
	if t.post != nil {
		if data, err = t.post.PostProcess(ref, data); err != nil {
			return &TileError{URL: ref.URL, Err: &PostProcessError{Err: err}}
		}
	}
	tile, err := canvas.DecodeTile(ref.Position, data)
	if err != nil {
		return &TileError{URL: ref.URL, Err: err}
	}
	if err := t.canvas.AddTile(tile); err != nil {
		return &TileError{URL: ref.URL, Err: err}
	}
	t.log.Debugf("tile at %s, %dms, %.2f kb, %s", ref.Position, time.Since(start).Milliseconds(), float32(len(data))/1024.0, ref.URL)
	return nil
}

func (t *task) report(ref dezoomer.TileReference, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if err == nil {
		t.succeeded++
	} else {
		t.log.Warn(err)
	}
	if t.opts.Observer != nil {
		t.opts.Observer.TileDone(t.done, t.total, ref, err)
	}
}
