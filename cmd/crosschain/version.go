package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/crosschain"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of crosschain",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crosschain version %s\n", strings.TrimSpace(crosschain.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
