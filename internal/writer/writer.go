// Package writer implements the output formats of the encoded data.
package writer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

const dataBytesPerLine = 16

// Format is an output format of the encoded data.
type Format string

// Supported output formats.
const (
	Raw Format = "raw"
	Hex Format = "hex"
	C   Format = "c"
)

// CArrayName is the variable name used by the C array output format.
const CArrayName = "buf"

var errUnsupportedFormat = errors.New("unsupported output format")

type lineWriterFunc func(line string, byteCount int) error

// Formats returns all supported output format names.
func Formats() []string {
	return []string{string(Raw), string(Hex), string(C)}
}

// ParseFormat returns the format for the given case insensitive name.
// An empty name selects the raw format.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Raw, nil
	}
	if !slices.Contains(Formats(), name) {
		return "", fmt.Errorf("%w '%s', valid formats: %s",
			errUnsupportedFormat, name, strings.Join(Formats(), ", "))
	}
	return Format(name), nil
}

// Writer writes encoded data in a configured format.
type Writer struct {
	format Format
	writer io.Writer
}

// New creates a new writer.
func New(writer io.Writer, format Format) *Writer {
	return &Writer{
		format: format,
		writer: writer,
	}
}

// Write outputs the data in the configured format.
func (w Writer) Write(data []byte) error {
	switch w.format {
	case Raw, "":
		if _, err := w.writer.Write(data); err != nil {
			return fmt.Errorf("writing raw data: %w", err)
		}
		return nil

	case Hex:
		if _, err := fmt.Fprintln(w.writer, hex.EncodeToString(data)); err != nil {
			return fmt.Errorf("writing hex data: %w", err)
		}
		return nil

	case C:
		return w.writeCArray(data)

	default:
		return fmt.Errorf("%w '%s'", errUnsupportedFormat, w.format)
	}
}

func (w Writer) writeCArray(data []byte) error {
	if _, err := fmt.Fprintf(w.writer, "unsigned char %s[] = {\n", CArrayName); err != nil {
		return fmt.Errorf("writing array header: %w", err)
	}

	written := 0
	lineWriter := func(line string, byteCount int) error {
		written += byteCount
		if written < len(data) {
			line += ","
		}
		if _, err := fmt.Fprintf(w.writer, "  %s\n", line); err != nil {
			return fmt.Errorf("writing array line: %w", err)
		}
		return nil
	}
	if err := w.BundleDataWrites(data, lineWriter); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w.writer, "};\nunsigned int %s_len = %d;\n", CArrayName, len(data)); err != nil {
		return fmt.Errorf("writing array footer: %w", err)
	}
	return nil
}

// BundleDataWrites bundles writes of data bytes to print dataBytesPerLine bytes per line.
func (w Writer) BundleDataWrites(data []byte, lineWriter lineWriterFunc) error {
	remaining := len(data)
	for i := 0; remaining > 0; {
		toWrite := min(remaining, dataBytesPerLine)

		buf := &strings.Builder{}
		for j := range toWrite {
			if _, err := fmt.Fprintf(buf, "0x%02x, ", data[i+j]); err != nil {
				return fmt.Errorf("writing data byte: %w", err)
			}
		}

		line := strings.TrimRight(buf.String(), ", ")

		if lineWriter != nil {
			if err := lineWriter(line, toWrite); err != nil {
				return fmt.Errorf("writing data line using custom writer: %w", err)
			}
		} else {
			if _, err := fmt.Fprintf(w.writer, "%s\n", line); err != nil {
				return fmt.Errorf("writing data line: %w", err)
			}
		}

		i += toWrite
		remaining -= toWrite
	}
	return nil
}
