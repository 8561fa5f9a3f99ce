// Command macho parses a Mach-O (or fat Mach-O) file and dumps its parsed
// structure: file header, load commands, segments/sections, symbols, and
// whichever of the export trie / chained fixups / code signature the image
// carries.
package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coreglyph/gomacho/internal/cliutil"
	"github.com/coreglyph/gomacho/macho"
)

var (
	segColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	sectColor = color.New(color.FgCyan).SprintFunc()
	symColor  = color.New(color.FgYellow).SprintFunc()
	hdrColor  = color.New(color.FgGreen, color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "macho <file>",
	Short:         "Dump a Mach-O file's parsed structure",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cliutil.ReadFile(args[0])
		if err != nil {
			return err
		}
		slice, err := cliutil.SelectSlice(data)
		if err != nil {
			return err
		}
		dump(slice)
		return nil
	},
}

func dump(s *macho.ParsedSlice) {
	fmt.Println(hdrColor("Header"))
	fmt.Printf("  CPU:          %s (%s)\n", s.Header.CPU, s.Header.SubCPU.String(s.Header.CPU))
	fmt.Printf("  Type:         %#x\n", uint32(s.Header.Type))
	fmt.Printf("  Flags:        %s\n", s.Header.Flags.Flags())
	fmt.Printf("  Commands:     %d, %s of load command data\n", s.Header.NCommands, humanize.Bytes(uint64(s.Header.SizeCommands)))

	fmt.Println(hdrColor("Segments"))
	for _, seg := range s.Segments {
		fmt.Printf("  %s  %#x-%#x  %s\n", segColor(seg.Name), seg.Addr, seg.Addr+seg.Memsz, humanize.Bytes(seg.Filesz))
		for _, sect := range seg.Sections {
			fmt.Printf("    %s  %#x  %s\n", sectColor(seg.Name+"."+sect.Name), sect.Addr, humanize.Bytes(sect.Size))
		}
	}

	if s.Symtab != nil {
		fmt.Printf("%s (%d symbols)\n", hdrColor("Symbols"), len(s.Symtab.Syms))
		for _, sym := range s.Symtab.Syms {
			fmt.Printf("  %s  %#x\n", symColor(sym.Name), sym.Value)
		}
	}

	if len(s.Exports) > 0 {
		fmt.Printf("%s (%d)\n", hdrColor("Exports"), len(s.Exports))
		for _, e := range s.Exports {
			fmt.Printf("  %s  %#x\n", e.Name, e.Info.Address)
		}
	}

	if s.ChainedFixups != nil {
		fmt.Printf("%s\n", hdrColor("Chained fixups"))
		fmt.Printf("  %d bind import(s), %d fixup(s)\n", len(s.ChainedFixups.Imports), len(s.ChainedFixups.Fixups))
	}

	if s.CodeSignature != nil {
		fmt.Printf("%s\n", hdrColor("Code signature"))
		for _, cd := range s.CodeSignature.CodeDirectories {
			fmt.Printf("  identifier: %s  teamID: %s  %d code slots\n", cd.Identifier, cd.TeamID, len(cd.CodeSlots))
		}
		for _, r := range s.CodeSignature.Requirements {
			fmt.Printf("  requirement: %s\n", r.Detail)
		}
	}
}

func main() {
	log.SetHandler(clihandler.Default)
	if err := rootCmd.Execute(); err != nil {
		cliutil.Fail(err)
	}
	os.Exit(0)
}
