package selector

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"dezoomify/internal/dezoomer"
	"dezoomify/internal/vec2d"
)

type level struct {
	name string
	size *vec2d.Vec2d
}

func (l *level) Name() string { return l.name }

func (l *level) SizeHint() (vec2d.Vec2d, bool) {
	if l.size == nil {
		return vec2d.Vec2d{}, false
	}
	return *l.size, true
}

func (l *level) HTTPHeaders() map[string]string { return nil }

func (l *level) Tiles() []dezoomer.TileResult { return nil }

func sized(name string, w, h int) *level {
	return &level{name: name, size: &vec2d.Vec2d{X: w, Y: h}}
}

type scripted struct {
	index int
	calls int
}

func (s *scripted) Choose(levels []dezoomer.ZoomLevel) (int, error) {
	s.calls++
	return s.index, nil
}

func TestChoose_Empty(t *testing.T) {
	_, err := Choose(nil, Policy{Largest: true}, &scripted{})
	if !errors.Is(err, ErrNoLevels) {
		t.Errorf("got %v, want ErrNoLevels", err)
	}
}

func TestChoose_SingleLevelIgnoresPolicy(t *testing.T) {
	c := &scripted{}
	only := sized("only", 5000, 5000)
	got, err := Choose([]dezoomer.ZoomLevel{only}, Policy{MaxWidth: 10}, c)
	if err != nil || got != only {
		t.Fatalf("got %v, %v", got, err)
	}
	if c.calls != 0 {
		t.Error("chooser should not be asked for a single level")
	}
}

func TestChoose_LargestIsOrderInvariant(t *testing.T) {
	levels := []dezoomer.ZoomLevel{
		sized("small", 100, 80),
		sized("wide", 1000, 10),
		&level{name: "unknown"},
		sized("big", 400, 300),
		sized("medium", 200, 150),
	}
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		r.Shuffle(len(levels), func(a, b int) { levels[a], levels[b] = levels[b], levels[a] })
		got, err := Choose(levels, Policy{Largest: true}, nil)
		if err != nil {
			t.Fatalf("Choose failed: %v", err)
		}
		if got.Name() != "big" {
			t.Errorf("shuffle %d: got %s, want big", i, got.Name())
		}
	}
}

func TestChoose_TiesKeepFirst(t *testing.T) {
	levels := []dezoomer.ZoomLevel{
		sized("a", 10, 40),
		sized("b", 20, 20),
		sized("c", 40, 10),
	}
	got, _ := Choose(levels, Policy{Largest: true}, nil)
	if got.Name() != "a" {
		t.Errorf("got %s, want a", got.Name())
	}
}

func TestChoose_Bounds(t *testing.T) {
	levels := []dezoomer.ZoomLevel{
		sized("z0", 100, 50),
		sized("z1", 200, 100),
		sized("z2", 400, 200),
		sized("z3", 800, 400),
	}
	tests := []struct {
		name   string
		policy Policy
		want   string
	}{
		{"max width strict", Policy{MaxWidth: 400}, "z1"},
		{"max width above", Policy{MaxWidth: 401}, "z2"},
		{"max height", Policy{MaxHeight: 201}, "z2"},
		{"both bounds", Policy{MaxWidth: 1000, MaxHeight: 150}, "z1"},
		{"largest wins over bounds", Policy{Largest: true, MaxWidth: 150}, "z3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Choose(levels, tt.policy, nil)
			if err != nil {
				t.Fatalf("Choose failed: %v", err)
			}
			if got.Name() != tt.want {
				t.Errorf("got %s, want %s", got.Name(), tt.want)
			}
			size, _ := got.SizeHint()
			if tt.policy.MaxWidth > 0 && !tt.policy.Largest && size.X >= tt.policy.MaxWidth {
				t.Errorf("width %d is not below %d", size.X, tt.policy.MaxWidth)
			}
		})
	}
}

func TestChoose_FallsBackToChooser(t *testing.T) {
	levels := []dezoomer.ZoomLevel{sized("a", 100, 100), sized("b", 200, 200)}
	tests := []struct {
		name   string
		policy Policy
	}{
		{"no policy", Policy{}},
		{"nothing under bound", Policy{MaxWidth: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scripted{index: 1}
			got, err := Choose(levels, tt.policy, c)
			if err != nil {
				t.Fatalf("Choose failed: %v", err)
			}
			if got.Name() != "b" || c.calls != 1 {
				t.Errorf("got %s after %d calls", got.Name(), c.calls)
			}
		})
	}

	_, err := Choose(levels, Policy{}, nil)
	if err == nil {
		t.Error("no chooser and no policy should fail")
	}
}

func TestChoose_LargestWithoutHintsAsks(t *testing.T) {
	levels := []dezoomer.ZoomLevel{&level{name: "a"}, &level{name: "b"}}
	c := &scripted{index: 0}
	got, err := Choose(levels, Policy{Largest: true}, c)
	if err != nil || got.Name() != "a" || c.calls != 1 {
		t.Errorf("got %v, %v after %d calls", got, err, c.calls)
	}
}

func TestPrompt_RetriesUntilValid(t *testing.T) {
	levels := []dezoomer.ZoomLevel{sized("first", 1, 1), sized("second", 2, 2)}
	var out bytes.Buffer
	p := &Prompt{In: strings.NewReader("abc\n7\n-1\n 1 \n"), Out: &out}

	i, err := p.Choose(levels)
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if i != 1 {
		t.Errorf("got %d, want 1", i)
	}
	text := out.String()
	for _, want := range []string{"0. first", "1. second", "'abc' is not a valid level number", "'7' is not", "'-1' is not"} {
		if !strings.Contains(text, want) {
			t.Errorf("output should contain %q:\n%s", want, text)
		}
	}
}

func TestPrompt_EndOfInput(t *testing.T) {
	p := &Prompt{In: strings.NewReader("x\n"), Out: &bytes.Buffer{}}
	_, err := p.Choose([]dezoomer.ZoomLevel{sized("a", 1, 1)})
	if err == nil {
		t.Error("end of input should be an error")
	}
}

func TestPrompt_Line(t *testing.T) {
	p := &Prompt{In: strings.NewReader("  http://example.com/info.json \n"), Out: &bytes.Buffer{}}
	line, err := p.Line("Enter an URL")
	if err != nil || line != "http://example.com/info.json" {
		t.Errorf("got %q, %v", line, err)
	}
}
