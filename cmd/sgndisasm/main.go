// Package main implements a disassembler for encoder output and raw x86 code
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/listing"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type optionFlags struct {
	input  string
	output string
	arch   string

	offset int
	length int
	quiet  bool
}

func main() {
	options := readArguments()

	if !options.quiet {
		printBanner()
	}

	if err := disasmFile(options); err != nil {
		fmt.Println(fmt.Errorf("disassembling failed: %w", err))
		os.Exit(1)
	}
}

func readArguments() optionFlags {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	options := optionFlags{}

	flags.StringVar(&options.arch, "a", "x32", "architecture of the code (x32/x64)")
	flags.IntVar(&options.offset, "offset", 0, "file offset to start disassembling at")
	flags.IntVar(&options.length, "n", 0, "number of bytes to disassemble, 0 disassembles until the end of the file")
	flags.StringVar(&options.output, "o", "", "name of the output file, printed on console if no name given")
	flags.BoolVar(&options.quiet, "q", false, "perform operations quietly")

	err := flags.Parse(os.Args[1:])
	args := flags.Args()

	if err != nil || len(args) == 0 {
		printBanner()
		fmt.Printf("usage: sgndisasm [options] <file to disassemble>\n\n")
		flags.PrintDefaults()
		os.Exit(1)
	}
	options.input = args[0]

	return options
}

func printBanner() {
	fmt.Println("[-----------------------------------------]")
	fmt.Println("[ sgndisasm - encoder output disassembler ]")
	fmt.Printf("[-----------------------------------------]\n\n")
	fmt.Printf("version: %s\n\n", buildinfo.Version(version, commit, date))
}

func disasmFile(options optionFlags) error {
	a, err := arch.Parse(options.arch)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(options.input)
	if err != nil {
		return fmt.Errorf("reading file '%s': %w", options.input, err)
	}

	code, err := selectRange(data, options.offset, options.length)
	if err != nil {
		return err
	}

	var outputFile io.WriteCloser
	if options.output == "" {
		outputFile = os.Stdout
	} else {
		outputFile, err = os.Create(options.output)
		if err != nil {
			return fmt.Errorf("creating file '%s': %w", options.output, err)
		}
	}

	if _, err = io.WriteString(outputFile, listing.Disassemble(code, a, options.offset)); err != nil {
		return fmt.Errorf("writing listing: %w", err)
	}
	if err = outputFile.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}

func selectRange(data []byte, offset, length int) ([]byte, error) {
	if offset < 0 || offset > len(data) {
		return nil, fmt.Errorf("offset %d outside of file size %d", offset, len(data))
	}
	end := len(data)
	if length > 0 {
		end = offset + length
		if end > len(data) {
			return nil, fmt.Errorf("range %d+%d outside of file size %d", offset, length, len(data))
		}
	}
	return data[offset:end], nil
}
