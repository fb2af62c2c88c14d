// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/options"
	"github.com/retroenv/sgn/internal/writer"
)

// ParseFlags parses command line flags and returns program and encoder options.
// The architecture of the encoder options is set after detection.
func ParseFlags() (options.Program, options.Encoder, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)
	readEncoderFlags(flags, &opts.EncoderFlags)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || (len(args) == 0 && !hasInput(opts)) {
		return opts, options.Encoder{}, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, options.Encoder{}, err
	}

	if err := normalizeOptions(&opts); err != nil {
		return opts, options.Encoder{}, err
	}

	if len(args) > 0 && opts.Batch == "" {
		opts.Input = args[0]
	}

	encOpts, err := createEncoderOptions(opts)
	if err != nil {
		return opts, options.Encoder{}, err
	}
	return opts, encOpts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	if e.msg != "" {
		fmt.Printf("%s\n\n", e.msg)
	}
	fmt.Printf("usage: sgn [options] <file to encode>\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
		fmt.Println()
	}
}

func hasInput(opts options.Program) bool {
	return opts.Input != "" || opts.String != "" || opts.Batch != ""
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg != "" && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after file to encode, please pass the file to encode as last argument", arg),
			}
		}
	}
	return nil
}

// normalizeOptions normalizes and validates option values
func normalizeOptions(opts *options.Program) error {
	format, err := writer.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	opts.Format = string(format)

	opts.Arch = strings.ToLower(strings.TrimSpace(opts.Arch))
	if opts.Arch != "" {
		if _, err := arch.Parse(opts.Arch); err != nil {
			return err
		}
	}
	return nil
}

// createEncoderOptions creates encoder options based on program options.
func createEncoderOptions(opts options.Program) (options.Encoder, error) {
	encOpts := options.Encoder{
		BlockSize:  opts.BlockSize,
		AntiDebug:  opts.AntiDebug,
		Crypto:     opts.Crypto,
		EmitStub:   !opts.NoStub,
		Multistage: opts.Multistage,
		SelfMod:    opts.SelfMod,
	}

	if opts.Key != "" {
		key, err := parseKey(opts.Key)
		if err != nil {
			return options.Encoder{}, err
		}
		encOpts.Key = &key
	}
	return encOpts, nil
}

// parseKey parses a hex key with an optional 0x prefix. The width is
// checked against the architecture once it is known.
func parseKey(s string) (uint64, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	key, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid hex key '%s': %w", arch.ErrConfiguration, s, err)
	}
	return key, nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Input, "i", "", "name of the input file, - reads stdin")
	flags.StringVar(&opts.Output, "o", "", "name of the output file, printed on console if no name given")
	flags.StringVar(&opts.String, "s", "", "encode the given string instead of an input file")
	flags.StringVar(&opts.Batch, "batch", "", "process a batch of given path and file mask and automatically .sgn file naming, for example *.bin")
	flags.StringVar(&opts.Arch, "a", "", "architecture of the decoder stub (x32/x64), defaults to $SGN_ARCH or x32")
	flags.IntVar(&opts.BlockSize, "b", 0, "block size in bytes (x32: 1/2/4, x64: 1/2/4/8), defaults to the register width")
	flags.StringVar(&opts.Key, "k", "", "initial key as hex value, random if not given")
	flags.StringVar(&opts.Format, "format", string(writer.Raw), "output format ("+strings.Join(writer.Formats(), "/")+")")
	flags.BoolVar(&opts.Verify, "verify", false, "verify the generated stubs and decode every layer to check that it matches the input")
	flags.BoolVar(&opts.List, "list", false, "log a disassembly of the generated stubs and the output layout")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}

func readEncoderFlags(flags *flag.FlagSet, opts *options.EncoderFlags) {
	flags.BoolVar(&opts.Multistage, "multistage", false, "encode the decoder stub with a second decoder stub")
	flags.BoolVar(&opts.SelfMod, "selfmod", false, "add a self-modifying store to the decode loop")
	flags.BoolVar(&opts.AntiDebug, "antidebug", false, "add a trap flag check to the decoder stub")
	flags.BoolVar(&opts.Crypto, "crypto", false, "add an outer encryption layer with its own decoder stub")
	flags.BoolVar(&opts.NoStub, "nostub", false, "output only the encoded payload without decoder stub")
}
