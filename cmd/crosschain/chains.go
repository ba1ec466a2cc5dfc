package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Print the chains declared in the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Chains) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no chains configured")
			return nil
		}
		out, err := yaml.Marshal(cfg.Chains)
		if err != nil {
			return fmt.Errorf("failed to render chains: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}
