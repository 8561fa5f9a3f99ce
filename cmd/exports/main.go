// Command exports decodes and prints the export trie of a Mach-O file: one
// line per exported symbol name and its terminal info.
package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/coreglyph/gomacho/internal/cliutil"
)

var rootCmd = &cobra.Command{
	Use:           "exports <file>",
	Short:         "Print a Mach-O file's export trie",
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
		if len(slice.Exports) == 0 {
			log.Warn("no exports found")
			return nil
		}
		for _, e := range slice.Exports {
			switch {
			case e.Flags.ReExport():
				name := e.Info.ReExportName
				if name == "" {
					name = e.Name
				}
				fmt.Printf("%s\t[re-export of %s, ordinal %d]\n", e.Name, name, e.Info.LibraryOrdinal)
			case e.Flags.StubAndResolver():
				fmt.Printf("%s\t[stub %#x, resolver %#x]\n", e.Name, e.Info.StubOffset, e.Info.ResolverOffset)
			default:
				fmt.Printf("%s\t%#x\n", e.Name, e.Info.Address)
			}
		}
		return nil
	},
}

func main() {
	log.SetHandler(clihandler.Default)
	if err := rootCmd.Execute(); err != nil {
		cliutil.Fail(err)
	}
	os.Exit(0)
}
