package selector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dezoomify/internal/dezoomer"
)

// Prompt asks on Out and reads the answer from In until a valid index is given.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

func (p *Prompt) Choose(levels []dezoomer.ZoomLevel) (int, error) {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	fmt.Fprintln(p.Out, "Found the following zoom levels:")
	for i, l := range levels {
		fmt.Fprintf(p.Out, "%d. %s\n", i, l.Name())
	}
	for {
		fmt.Fprintln(p.Out, "Which level do you want to download? ")
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return 0, fmt.Errorf("unable to read the chosen level: %w", err)
			}
			return 0, errors.New("no level chosen: end of input")
		}
		line := strings.TrimSpace(p.scanner.Text())
		if i, err := strconv.Atoi(line); err == nil && i >= 0 && i < len(levels) {
			return i, nil
		}
		fmt.Fprintf(p.Out, "'%s' is not a valid level number\n", line)
	}
}

// Line reads a single line from the prompt input, for questions other than levels.
func (p *Prompt) Line(question string) (string, error) {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	fmt.Fprintln(p.Out, question)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}
