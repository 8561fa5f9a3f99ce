// Package cliutil holds the small pieces shared by the cmd/macho, cmd/thin
// and cmd/exports command-line tools: opening a file, picking a slice out of
// a fat binary, and reporting a parse failure's diagnostic chain.
package cliutil

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/apex/log"

	"github.com/coreglyph/gomacho/macho"
)

// ReadFile loads path fully into memory. The decoders operate on byte
// slices, not readers, so every tool front-loads the whole file.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// SelectSlice parses data and, if it is a fat binary, prompts the user to
// pick one architecture with a numeric survey.Select as spec.md 6 describes.
// Non-fat input is returned as its single slice with no prompt.
func SelectSlice(data []byte) (*macho.ParsedSlice, error) {
	f, err := macho.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if f.FatHeader == nil {
		return &f.Slices[0], nil
	}

	options := make([]string, len(f.FatHeader.Archs))
	for i, a := range f.FatHeader.Archs {
		options[i] = fmt.Sprintf("%s, %s", a.CPU, a.SubCPU.String(a.CPU))
	}

	choice := 0
	prompt := &survey.Select{
		Message: "Detected a universal Mach-O file, please select an architecture:",
		Options: options,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			log.Warn("Exiting...")
			os.Exit(0)
		}
		return nil, fmt.Errorf("failed to prompt for architecture: %w", err)
	}
	return &f.Slices[choice], nil
}

// Fail logs err's full diagnostic chain and exits nonzero, per spec.md 6's
// requirement that every tool print the chain and exit nonzero on failure.
func Fail(err error) {
	log.Error(err.Error())
	os.Exit(1)
}
