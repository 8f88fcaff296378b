package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string

	socketFlag     string
	debugAddrFlag  string
	maxClientsFlag int
	samplerFlag    bool
)

// rootCmd runs the display server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "waycored",
	Short: "Display server for the waycore protocol extensions",
	Long: `waycored serves the waycore protocol over a unix socket: the wl_display
core, surfaces and shared memory, touch input, and the stylus and
alpha-blending extension pairs.

Running waycored without a subcommand starts the server. An HTTP debug
endpoint serves health, metrics and live protocol state.

Management:
  waycored config init   # Write a config template
  waycored config check  # Validate a config file
  waycored version       # Print version information`,
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "waycored.toml", "config file path")

	rootCmd.Flags().StringVar(&socketFlag, "socket", "", "display socket name or absolute path")
	rootCmd.Flags().StringVar(&debugAddrFlag, "debug-addr", "", "debug HTTP listen address")
	rootCmd.Flags().IntVar(&maxClientsFlag, "max-clients", 0, "maximum concurrent clients, 0 for unlimited")
	rootCmd.Flags().BoolVar(&samplerFlag, "sampler", false, "drive synthetic stylus input")
}
