package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration, or write out the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if initFlag {
			if err := cfg.Save(configPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("wrote default config to %s\n", configPath)
			return nil
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var initFlag bool

func init() {
	configCmd.Flags().BoolVar(&initFlag, "init", false, "write the loaded/default config back to --config")
}
