package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exogonal/waycore/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the waycored configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config template",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(cfgFile, configForce); err != nil {
			return err
		}
		fmt.Printf("Wrote config template to %s\n", cfgFile)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate an existing config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return err
		}
		fmt.Printf("Validated config at %s\n", cfgFile)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
