package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL string
	output string
)

var rootCmd = &cobra.Command{
	Use:   "wpsctl",
	Short: "WPS CLI - Workspace Provisioning Service command line tool",
	Long:  `wpsctl is a command line interface for the Workspace Provisioning Service (WPS).`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "a", "http://localhost:8080", "WPS API URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
}
