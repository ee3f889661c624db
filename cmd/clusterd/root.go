package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	verbose    bool
	configPath string

	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgBlue)
	warnColor    = color.New(color.FgYellow)
)

var rootCmd = &cobra.Command{
	Use:   "clusterd",
	Short: "Cluster coordination toolkit reference service and routing client",
	Long: infoColor.Sprint("clusterd") + " wires the cluster-coordination core (working-slot " +
		"allocation, gap-free routing index, modulo/hash-ring client routing) into a " +
		"runnable demo server and a one-shot routing client.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (required)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func fatal(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireConfigPath() {
	if configPath == "" {
		fmt.Fprintln(os.Stderr, warnColor.Sprint("--config is required"))
		os.Exit(1)
	}
}
