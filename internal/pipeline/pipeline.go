// Package pipeline orchestrates the encoding workflow stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/detector"
	"github.com/retroenv/sgn/internal/encoder"
	"github.com/retroenv/sgn/internal/listing"
	"github.com/retroenv/sgn/internal/loader"
	"github.com/retroenv/sgn/internal/options"
	"github.com/retroenv/sgn/internal/verification"
	"github.com/retroenv/sgn/internal/writer"
)

// Pipeline orchestrates the complete encoding workflow.
type Pipeline struct {
	logger   *log.Logger
	detector *detector.Detector
	loader   *loader.Loader
	encoder  *encoder.Encoder
	listing  io.Writer
}

// New creates a new encoding pipeline. Input that is not given as file or
// string is read from stdin.
func New(logger *log.Logger, rng encoder.Source, stdin io.Reader) *Pipeline {
	return &Pipeline{
		logger:   logger,
		detector: detector.New(logger),
		loader:   loader.New(stdin),
		encoder:  encoder.New(logger, rng),
		listing:  os.Stderr,
	}
}

// Execute runs the complete encoding pipeline.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program, encOpts options.Encoder, w io.Writer) (*encoder.Result, error) {
	a, err := p.detector.Detect(opts)
	if err != nil {
		return nil, fmt.Errorf("detecting architecture: %w", err)
	}

	data, err := p.loader.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("loading input: %w", err)
	}

	return p.ExecuteWithData(ctx, data, opts, encOpts, w, a)
}

// ExecuteWithData runs the encoding pipeline with pre-loaded input data.
// This is useful for testing and programmatic usage where the data is already in memory.
// Nothing is written if any stage fails.
func (p *Pipeline) ExecuteWithData(ctx context.Context, data []byte, opts options.Program,
	encOpts options.Encoder, w io.Writer, a arch.Arch) (*encoder.Result, error) {

	encOpts.Arch = a
	if encOpts.BlockSize == 0 {
		encOpts.BlockSize = a.DefaultBlockSize()
	}

	format, err := writer.ParseFormat(opts.Format)
	if err != nil {
		return nil, fmt.Errorf("selecting output format: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.printInfo(opts, encOpts, len(data))

	result, err := p.encoder.Encode(data, encOpts)
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.List {
		if err := p.writeListing(result); err != nil {
			return nil, fmt.Errorf("writing listing: %w", err)
		}
	}

	if opts.Verify {
		if err := verification.VerifyOutput(p.logger, result, data); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
		p.logger.Info("Verification successful")
	}

	if err := writer.New(w, format).Write(result.Output); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}
	return result, nil
}

// writeListing writes the output layout and a disassembly of every stub.
func (p *Pipeline) writeListing(result *encoder.Result) error {
	if _, err := fmt.Fprintln(p.listing, listing.Tree(result)); err != nil {
		return fmt.Errorf("writing layout tree: %w", err)
	}

	for _, l := range result.Layers {
		if !l.HasStub() {
			continue
		}
		if _, err := fmt.Fprintf(p.listing, "; %s stub\n%s\n",
			l.Kind, listing.Disassemble(l.Stub.Bytes(), result.Arch, l.StubOffset)); err != nil {
			return fmt.Errorf("writing %s stub disassembly: %w", l.Kind, err)
		}
	}
	return nil
}

// printInfo prints information about the data being processed.
func (p *Pipeline) printInfo(opts options.Program, encOpts options.Encoder, size int) {
	if opts.Quiet {
		return
	}

	input := opts.Input
	if opts.String != "" {
		input = "string"
	} else if input == "" || input == "-" {
		input = "stdin"
	}

	p.logger.Info("Encoding",
		log.String("input", input),
		log.Int("size", size),
		log.String("arch", encOpts.Arch.String()),
		log.Int("block_size", encOpts.BlockSize),
	)
	if !encOpts.EmitStub {
		p.logger.Warn("Decoder stub output is disabled, the output needs an external decoder")
	}
}
