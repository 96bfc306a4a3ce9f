package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"dezoomify/internal/dezoomer"
	"dezoomify/internal/download"
	"dezoomify/internal/fetch"
	"dezoomify/internal/protocols"
	"dezoomify/internal/selector"
	"dezoomify/internal/tilecache"
)

// InitTask runs one dezoom: locate the image, pick a level, download its
// tiles and save the result to outFile.
func InitTask() error {
	start := time.Now()
	id, _ := shortid.Generate()
	logger := log.WithField("run", id)

	registry := protocols.Registry()
	dz, err := registry.New(conf.Task.Dezoomer)
	if err != nil {
		return fmt.Errorf("%w, available dezoomers: %s", err, strings.Join(registry.Names(), ", "))
	}

	prompt := &selector.Prompt{In: os.Stdin, Out: os.Stdout}
	uri := inputURI
	if uri == "" {
		if uri, err = prompt.Line("Enter an URL or a path to a tiles.yaml file: "); err != nil {
			return fmt.Errorf("no input given: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SafeExitInst.Register(cancel)

	client := fetch.New(fetch.Options{
		Headers: conf.HTTP.Headers,
		Timeout: time.Duration(conf.Task.Timeout) * time.Second,
		Logger:  logger,
	})

	logger.Infof("Trying to locate a zoomable image with the %s dezoomer...", dz.Name())
	levels, err := dezoomer.Resolve(ctx, dz, &discovery{f: client, log: logger}, uri, conf.Task.MaxRequests)
	if err != nil {
		return err
	}
	policy := selector.Policy{
		Largest:   conf.Select.Largest,
		MaxWidth:  conf.Select.MaxWidth,
		MaxHeight: conf.Select.MaxHeight,
	}
	level, err := selector.Choose(levels, policy, prompt)
	if err != nil {
		return err
	}
	logger.Infof("Dezooming %s", level.Name())

	var tiles download.Fetcher = client
	if dir := conf.Cache.Directory; dir != "" {
		cache, err := tilecache.Open(dir, logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		SafeExitInst.Register(cache.Close)
		tiles = cache.Wrap(client)
	}

	bar := &progressBar{}
	res, err := download.Level(ctx, level, tiles, download.Options{
		Workers:  conf.Task.Workers,
		Delay:    time.Duration(conf.Task.Timedelay) * time.Millisecond,
		Observer: bar,
		Logger:   logger,
	})
	if err != nil {
		bar.Finish("")
		return err
	}
	bar.Finish(res.Summary())

	if err := save(res, outFile, logger); err != nil {
		return err
	}
	secs := time.Since(start).Seconds()
	logger.WithField("partial", res.Partial()).Infof("%.3fs finished...", secs)
	return nil
}

func save(res *download.Result, path string, logger logrus.FieldLogger) error {
	size := res.Canvas.Size()
	img := res.Canvas.Image()
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality(conf.Output.Quality))); err != nil {
		return fmt.Errorf("unable to save the image to %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	logger.WithField("size", fmt.Sprintf("%dx%d", size.X, size.Y)).Infof("Image successfully saved to '%s'", abs)
	return nil
}

// jpegQuality falls back to 95 outside of 1-100.
func jpegQuality(q int) int {
	if q <= 0 || q > 100 {
		return 95
	}
	return q
}

// discovery logs the documents fetched while locating the image.
type discovery struct {
	f   dezoomer.Fetcher
	log logrus.FieldLogger
}

func (d *discovery) Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error) {
	if dezoomer.IsRemote(uri) {
		d.log.Infof("Downloading %s...", uri)
	} else {
		d.log.Infof("Opening %s...", uri)
	}
	return d.f.Fetch(ctx, uri, headers)
}
