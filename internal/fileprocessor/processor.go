// Package fileprocessor handles file loading and processing operations
package fileprocessor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/encoder"
	"github.com/retroenv/sgn/internal/options"
	"github.com/retroenv/sgn/internal/pipeline"
	"github.com/retroenv/sgn/internal/writer"
)

var errNoBatchMatches = errors.New("no files match the batch pattern")

// ProcessFile handles the complete file processing workflow. The output
// file is only created once encoding and verification succeeded.
func ProcessFile(ctx context.Context, logger *log.Logger, rng encoder.Source,
	opts options.Program, encOpts options.Encoder) error {

	var buf bytes.Buffer
	pipe := pipeline.New(logger, rng, os.Stdin)
	if _, err := pipe.Execute(ctx, opts, encOpts, &buf); err != nil {
		return err
	}

	if err := writeOutput(opts, buf.Bytes()); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// GetFilesToProcess returns list of files to process based on options
func GetFilesToProcess(opts *options.Program) ([]string, error) {
	if opts.Batch != "" {
		matches, err := filepath.Glob(opts.Batch)
		if err != nil {
			return nil, fmt.Errorf("globbing batch pattern: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w '%s'", errNoBatchMatches, opts.Batch)
		}
		return matches, nil
	}
	return []string{opts.Input}, nil
}

// GenerateOutputFilename generates output filename for a given input file
// and output format.
func GenerateOutputFilename(inputFile, format string) string {
	ext := filepath.Ext(inputFile)
	base := inputFile[:len(inputFile)-len(ext)]

	switch writer.Format(format) {
	case writer.Hex:
		return base + ".hex"
	case writer.C:
		return base + ".h"
	default:
		return base + ".sgn"
	}
}

func writeOutput(opts options.Program, data []byte) error {
	if opts.Output == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return fmt.Errorf("creating output file %s: %w", opts.Output, err)
	}
	return nil
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	versionString := version
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		versionString += fmt.Sprintf(" (%s)", commit)
	}

	logger.Info("sgn", log.String("version", versionString))

	if date != "" && !strings.Contains(date, "unknown") {
		logger.Info("Build", log.String("date", date))
	}
}
