package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type EmbedTokenRow struct {
	Token      string `json:"token"`
	TokenID    string `json:"token_id,omitempty"`
	Expiration string `json:"expiration,omitempty"`
}

var embedTokenCmd = &cobra.Command{
	Use:   "embed-token <provisioning-id> <report-id>",
	Short: "Generate an embed token for a provisioned report",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp EmbedTokenRow
		path := "/v1/provisionings/" + args[0] + "/reports/" + args[1] + "/embed-token"
		if err := client.Get(path, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if output == "json" {
			printResult(resp)
			return
		}
		fmt.Printf("Token: %s\n", resp.Token)
		if resp.Expiration != "" {
			fmt.Printf("Expires: %s\n", resp.Expiration)
		}
	},
}

func init() {
	rootCmd.AddCommand(embedTokenCmd)
}
