package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"dezoomify/internal/canvas"
	"dezoomify/internal/dezoomer"
	"dezoomify/internal/vec2d"
)

type level struct {
	size    *vec2d.Vec2d
	headers map[string]string
	tiles   []dezoomer.TileResult
}

func (l *level) Name() string { return "test level" }

func (l *level) SizeHint() (vec2d.Vec2d, bool) {
	if l.size == nil {
		return vec2d.Vec2d{}, false
	}
	return *l.size, true
}

func (l *level) HTTPHeaders() map[string]string { return l.headers }

func (l *level) Tiles() []dezoomer.TileResult { return l.tiles }

// fakeFetcher serves tiles from memory after a random short delay, so
// completions arrive in an arbitrary order.
type fakeFetcher struct {
	mu      sync.Mutex
	data    map[string][]byte
	headers []map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error) {
	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, headers)
	data, ok := f.data[uri]
	if !ok {
		return nil, fmt.Errorf("404 %s", uri)
	}
	return data, nil
}

func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var quadrantColors = []color.RGBA{
	{255, 0, 0, 255},
	{0, 255, 0, 255},
	{0, 0, 255, 255},
	{255, 255, 0, 255},
}

// quadrants builds a 100x100 level made of four 50x50 tiles.
func quadrants(t *testing.T) (*level, *fakeFetcher) {
	l := &level{size: &vec2d.Vec2d{X: 100, Y: 100}, headers: map[string]string{"Referer": "http://viewer/"}}
	f := &fakeFetcher{data: map[string][]byte{}}
	for i, pos := range []vec2d.Vec2d{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 0, Y: 50}, {X: 50, Y: 50}} {
		url := fmt.Sprintf("http://tiles/%d_%d.png", pos.X, pos.Y)
		l.tiles = append(l.tiles, dezoomer.TileResult{Ref: dezoomer.TileReference{URL: url, Position: pos}})
		f.data[url] = encodePNG(t, 50, 50, quadrantColors[i])
	}
	return l, f
}

type recorder struct {
	mu    sync.Mutex
	dones []int
	total int
	errs  int
}

func (r *recorder) TileDone(done, total int, ref dezoomer.TileReference, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dones = append(r.dones, done)
	r.total = total
	if err != nil {
		r.errs++
	}
}

func testOptions(workers int, obs Observer) Options {
	logger, _ := test.NewNullLogger()
	return Options{Workers: workers, Observer: obs, Logger: logger}
}

func pixel(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestLevel_AllTiles(t *testing.T) {
	l, f := quadrants(t)
	rec := &recorder{}

	res, err := Level(context.Background(), l, f, testOptions(2, rec))
	if err != nil {
		t.Fatalf("Level failed: %v", err)
	}
	if res.Total != 4 || res.Succeeded != 4 || res.Partial() {
		t.Errorf("result: %+v", res)
	}
	if res.Summary() != "Downloaded all tiles." {
		t.Errorf("summary: %s", res.Summary())
	}

	img := res.Canvas.Image()
	if img.Bounds() != image.Rect(0, 0, 100, 100) {
		t.Fatalf("bounds: %v", img.Bounds())
	}
	for i, p := range []image.Point{{10, 10}, {60, 10}, {10, 60}, {99, 99}} {
		if got := pixel(img, p.X, p.Y); got != quadrantColors[i] {
			t.Errorf("quadrant %d: got %v", i, got)
		}
	}

	for _, h := range f.headers {
		if h["Referer"] != "http://viewer/" {
			t.Errorf("level headers not used: %v", h)
		}
	}
	for i, d := range rec.dones {
		if d != i+1 {
			t.Fatalf("progress not monotonic: %v", rec.dones)
		}
	}
	if len(rec.dones) != 4 || rec.total != 4 {
		t.Errorf("observer: %d calls, total %d", len(rec.dones), rec.total)
	}
}

func TestLevel_FailedQuadrant(t *testing.T) {
	l, f := quadrants(t)
	f.data["http://tiles/50_50.png"] = []byte("this is not an image")
	rec := &recorder{}

	res, err := Level(context.Background(), l, f, testOptions(2, rec))
	if err != nil {
		t.Fatalf("Level failed: %v", err)
	}
	if res.Succeeded != 3 || res.Total != 4 {
		t.Errorf("result: %+v", res)
	}
	if res.Summary() != "Successfully downloaded 3 tiles out of 4" {
		t.Errorf("summary: %s", res.Summary())
	}
	if rec.errs != 1 || len(rec.dones) != 4 {
		t.Errorf("observer: %d errors over %d calls", rec.errs, len(rec.dones))
	}

	img := res.Canvas.Image()
	if got := pixel(img, 75, 75); got != (color.RGBA{}) {
		t.Errorf("failed quadrant should stay blank, got %v", got)
	}
	if got := pixel(img, 25, 25); got != quadrantColors[0] {
		t.Errorf("first quadrant: got %v", got)
	}
}

func TestLevel_PartialFailures(t *testing.T) {
	tests := []struct {
		name    string
		missing []string
		wantErr bool
		wantOK  int
	}{
		{"one network failure", []string{"http://tiles/0_0.png"}, false, 3},
		{"three failures", []string{"http://tiles/0_0.png", "http://tiles/50_0.png", "http://tiles/0_50.png"}, false, 1},
		{"all failed", []string{"http://tiles/0_0.png", "http://tiles/50_0.png", "http://tiles/0_50.png", "http://tiles/50_50.png"}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, f := quadrants(t)
			for _, m := range tt.missing {
				delete(f.data, m)
			}
			res, err := Level(context.Background(), l, f, testOptions(3, nil))
			if tt.wantErr {
				if !errors.Is(err, ErrNoTile) || res != nil {
					t.Fatalf("got %v, %v, want ErrNoTile", res, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Level failed: %v", err)
			}
			if res.Succeeded != tt.wantOK || !res.Partial() {
				t.Errorf("result: %+v", res)
			}
		})
	}
}

func TestLevel_OutOfBoundsTileIsIsolated(t *testing.T) {
	l, f := quadrants(t)
	l.tiles = append(l.tiles, dezoomer.TileResult{Ref: dezoomer.TileReference{
		URL:      "http://tiles/0_0.png",
		Position: vec2d.Vec2d{X: 80, Y: 80},
	}})

	rec := &recorder{}
	res, err := Level(context.Background(), l, f, testOptions(4, rec))
	if err != nil {
		t.Fatalf("Level failed: %v", err)
	}
	if res.Total != 5 || res.Succeeded != 4 {
		t.Errorf("result: %+v", res)
	}
}

func TestLevel_EnumerationErrorsAreDropped(t *testing.T) {
	l, f := quadrants(t)
	l.tiles = append(l.tiles, dezoomer.TileResult{Err: errors.New("malformed tile")})

	res, err := Level(context.Background(), l, f, testOptions(1, nil))
	if err != nil {
		t.Fatalf("Level failed: %v", err)
	}
	if res.Total != 4 || res.Partial() {
		t.Errorf("enumeration errors should not count as tiles: %+v", res)
	}
}

func TestLevel_WorkerCountDoesNotChangeOutput(t *testing.T) {
	l := &level{}
	f := &fakeFetcher{data: map[string][]byte{}}
	r := rand.New(rand.NewSource(7))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			url := fmt.Sprintf("http://tiles/%d/%d", x, y)
			c := color.RGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255}
			f.data[url] = encodePNG(t, 8, 8, c)
			l.tiles = append(l.tiles, dezoomer.TileResult{Ref: dezoomer.TileReference{
				URL:      url,
				Position: vec2d.Vec2d{X: x * 8, Y: y * 8},
			}})
		}
	}

	render := func(workers int) *image.RGBA {
		res, err := Level(context.Background(), l, f, testOptions(workers, nil))
		if err != nil {
			t.Fatalf("Level(%d workers) failed: %v", workers, err)
		}
		img := res.Canvas.Image()
		out := image.NewRGBA(img.Bounds())
		for y := 0; y < img.Bounds().Dy(); y++ {
			for x := 0; x < img.Bounds().Dx(); x++ {
				out.Set(x, y, img.At(x, y))
			}
		}
		return out
	}

	serial := render(1)
	parallel := render(8)
	if serial.Bounds() != image.Rect(0, 0, 48, 48) {
		t.Fatalf("bounds: %v", serial.Bounds())
	}
	if !bytes.Equal(serial.Pix, parallel.Pix) {
		t.Error("output depends on the number of workers")
	}
}

func TestLevel_Canceled(t *testing.T) {
	l, f := quadrants(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Level(ctx, l, f, testOptions(1, nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(f.headers) != 0 {
		t.Errorf("no tile should be fetched after cancellation, got %d", len(f.headers))
	}
}

func TestTileError(t *testing.T) {
	cause := &canvas.DecodeError{Err: errors.New("bad")}
	err := error(&TileError{URL: "http://t", Err: cause})
	var de *canvas.DecodeError
	if !errors.As(err, &de) {
		t.Error("TileError should unwrap to its cause")
	}
	if err.Error() != "error with tile http://t: invalid image error: bad" {
		t.Errorf("message: %s", err)
	}
}

// xorLevel serves tiles whose bytes are xored with key.
type xorLevel struct {
	*level
	key byte
}

func (l *xorLevel) PostProcess(ref dezoomer.TileReference, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty tile")
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ l.key
	}
	return out, nil
}

func TestLevel_PostProcess(t *testing.T) {
	l, f := quadrants(t)
	for url, data := range f.data {
		scrambled := make([]byte, len(data))
		for i, b := range data {
			scrambled[i] = b ^ 0x5a
		}
		f.data[url] = scrambled
	}
	f.data["http://tiles/50_50.png"] = []byte{}

	res, err := Level(context.Background(), &xorLevel{level: l, key: 0x5a}, f, testOptions(2, nil))
	if err != nil {
		t.Fatalf("Level failed: %v", err)
	}
	if res.Succeeded != 3 {
		t.Errorf("got %d tiles, want 3", res.Succeeded)
	}
	img := res.Canvas.Image()
	if pixel(img, 10, 10) != quadrantColors[0] || pixel(img, 60, 10) != quadrantColors[1] {
		t.Error("post-processed tiles were not decoded")
	}
	if pixel(img, 60, 60) != (color.RGBA{}) {
		t.Error("the tile that failed post-processing should stay blank")
	}
}

type errObserver []error

func (o *errObserver) TileDone(done, total int, ref dezoomer.TileReference, err error) {
	*o = append(*o, err)
}

func TestLevel_PostProcessErrorIsPerTile(t *testing.T) {
	l, f := quadrants(t)
	for url := range f.data {
		f.data[url] = []byte{}
	}
	var errs errObserver
	_, err := Level(context.Background(), &xorLevel{level: l, key: 0x5a}, f, testOptions(1, &errs))
	if !errors.Is(err, ErrNoTile) {
		t.Fatalf("got %v, want ErrNoTile", err)
	}
	if len(errs) != 4 {
		t.Fatalf("every tile should be reported once, got %d", len(errs))
	}
	for _, e := range errs {
		var pe *PostProcessError
		if !errors.As(e, &pe) {
			t.Errorf("got %v, want PostProcessError", e)
		}
	}

	perr := &TileError{URL: "u", Err: &PostProcessError{Err: errors.New("bad key")}}
	if perr.Error() != "error with tile u: unable to process the downloaded tile: bad key" {
		t.Errorf("got %q", perr.Error())
	}
}

type hugeLevel struct {
	level
	enumerated bool
}

func (l *hugeLevel) Tiles() []dezoomer.TileResult {
	l.enumerated = true
	return nil
}

func TestLevel_TooLargeFailsBeforeEnumeration(t *testing.T) {
	l := &hugeLevel{level: level{size: &vec2d.Vec2d{X: 268435456, Y: 268435456}}}
	f := &fakeFetcher{data: map[string][]byte{}}

	_, err := Level(context.Background(), l, f, testOptions(2, nil))
	var se *canvas.SizeError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want canvas.SizeError", err)
	}
	if l.enumerated {
		t.Error("tiles should not be listed for a level that cannot be assembled")
	}
}
