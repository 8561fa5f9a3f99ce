// Command thin extracts one architecture's raw byte range out of a fat
// (universal) Mach-O file, unchanged, the way `lipo -thin` does.
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
	Use:           "thin <file> <output>",
	Short:         "Extract a single architecture's slice out of a fat Mach-O file",
	Args:          cobra.ExactArgs(2),
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
		if err := os.WriteFile(args[1], slice.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[1], err)
		}
		log.Infof("wrote %s slice to %s", slice.Header.CPU, args[1])
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
