// Command voxcore is the on-device client core: it maintains the cloud
// session, drives the audio pipeline, dispatches external tools, and bridges
// to the GUI and IoT sibling processes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voxcore",
	Short: "On-device voice assistant client core",
	Long: `voxcore maintains the device's cloud session, audio pipeline, and
external tool gateway.

Configuration is a single YAML file selected with --config; VOXCORE_*
environment variables override individual fields.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "voxcore.yaml", "path to the YAML configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voxcore: %v\n", err)
		os.Exit(1)
	}
}
