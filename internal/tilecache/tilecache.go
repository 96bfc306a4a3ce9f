// Package tilecache keeps downloaded tile bytes on disk so an interrupted
// run can be restarted without fetching the same tiles again.
package tilecache

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const indexName = "index.log"

// Fetcher is the transport wrapped by the cache.
type Fetcher interface {
	Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error)
}

// Cache stores one file per tile and an append-only index of stored keys.
// Index writes go through a single goroutine.
type Cache struct {
	dir      string
	index    *os.File
	saveChan chan string
	done     chan struct{}
	log      logrus.FieldLogger

	mu     sync.RWMutex
	stored map[string]struct{}
	closed bool
}

// Open creates dir if needed and loads its index.
func Open(dir string, logger logrus.FieldLogger) (*Cache, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create tile cache directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, indexName), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tile cache index: %w", err)
	}
	stored, err := readIndex(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read tile cache index: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Cache{
		dir:      dir,
		index:    file,
		saveChan: make(chan string, 64),
		done:     make(chan struct{}),
		log:      logger,
		stored:   stored,
	}
	go c.writeIndex()
	logger.Infof("tile cache %s opened, %d tiles already stored", dir, len(stored))
	return c, nil
}

func readIndex(r io.Reader) (map[string]struct{}, error) {
	res := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			res[line] = struct{}{}
		}
	}
	return res, sc.Err()
}

func (c *Cache) writeIndex() {
	defer close(c.done)
	for key := range c.saveChan {
		if _, err := c.index.WriteString(key + "\n"); err != nil {
			c.log.Warnf("tile cache index write failed: %s", err)
		}
	}
}

func key(uri string) string {
	sum := sha1.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(k string) string {
	return filepath.Join(c.dir, k[:2], k+".tile")
}

// Get returns the stored bytes for uri, if any.
func (c *Cache) Get(uri string) ([]byte, bool) {
	k := key(uri)
	c.mu.RLock()
	_, ok := c.stored[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(c.path(k))
	if err != nil {
		c.log.Debugf("tile cache entry for %s unreadable: %s", uri, err)
		return nil, false
	}
	return data, true
}

// Put stores data for uri. It does nothing once the cache is closed.
func (c *Cache) Put(uri string, data []byte) error {
	k := key(uri)
	p := c.path(k)
	if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if _, ok := c.stored[k]; ok {
		return nil
	}
	c.stored[k] = struct{}{}
	c.saveChan <- k
	return nil
}

// Close flushes the index. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.saveChan)
	c.mu.Unlock()

	<-c.done
	c.index.Close()
	c.log.Infof("tile cache %s closed", c.dir)
}

// Wrap returns a Fetcher answering from the cache and storing what f fetches.
func (c *Cache) Wrap(f Fetcher) Fetcher {
	return &cachingFetcher{cache: c, next: f}
}

type cachingFetcher struct {
	cache *Cache
	next  Fetcher
}

func (f *cachingFetcher) Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error) {
	if data, ok := f.cache.Get(uri); ok {
		return data, nil
	}
	data, err := f.next.Fetch(ctx, uri, headers)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Put(uri, data); err != nil {
		f.cache.log.Warnf("unable to cache %s: %s", uri, err)
	}
	return data, nil
}
