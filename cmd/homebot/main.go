package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "homebot",
	Short:        "Household chat bot",
	Long:         `homebot walks you through cleaning the house one task at a time and keeps track of the pantry, spending and reminders.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")
	rootCmd.AddCommand(serveCmd, flowCmd, zonesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
