// Package loader handles input data loading operations.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/sgn/internal/options"
)

var errNoInput = errors.New("no input data")

// Loader loads the data to encode from a string, a file or stdin.
type Loader struct {
	stdin io.Reader
}

// New creates a new input loader reading from the given stdin if no
// input file or string is specified.
func New(stdin io.Reader) *Loader {
	return &Loader{
		stdin: stdin,
	}
}

// Load returns the data to encode. A string given by option takes
// precedence over the input file, an input file name of - or no input
// file reads stdin.
func (l *Loader) Load(opts options.Program) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case opts.String != "":
		data = []byte(opts.String)

	case opts.Input == "" || opts.Input == "-":
		data, err = io.ReadAll(l.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

	default:
		data, err = os.ReadFile(opts.Input)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", opts.Input, err)
		}
	}

	if len(data) == 0 {
		return nil, errNoInput
	}
	return data, nil
}
