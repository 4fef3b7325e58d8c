package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type ProvisioningRow struct {
	ProvisioningID   string `json:"provisioning_id"`
	Name             string `json:"name"`
	TemplateGroupID  string `json:"template_group_id"`
	State            string `json:"state"`
	WorkspaceID      string `json:"workspace_id"`
	DatasetID        string `json:"dataset_id"`
	DatasourceID     string `json:"datasource_id"`
	FolderID         string `json:"folder_id"`
	RefreshCompleted *bool  `json:"refresh_completed"`
	CreatedAt        string `json:"created_at"`
}

type ProvisioningListResponse struct {
	Provisionings []ProvisioningRow `json:"provisionings"`
	NextCursor    string            `json:"next_cursor"`
}

type TaskRef struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_href"`
}

var (
	tenantFile    string
	scheduleTimes []string
	scheduleDays  []string
	capacityID    string
	folderPath    string
	workspaceID   string
)

var provisioningCmd = &cobra.Command{
	Use:     "provisioning",
	Aliases: []string{"prov"},
	Short:   "Provisioning management commands",
}

var provCreateCmd = &cobra.Command{
	Use:   "create <name> <template-group-id> <package-path>",
	Short: "Provision a workspace from a template",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		req := map[string]interface{}{
			"name":              args[0],
			"template_group_id": args[1],
			"package_path":      args[2],
		}
		if tenantFile != "" {
			b, err := os.ReadFile(tenantFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			var tenant map[string]interface{}
			if err := json.Unmarshal(b, &tenant); err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid tenant file: %v\n", err)
				os.Exit(1)
			}
			req["tenant"] = tenant
		}
		if len(scheduleTimes) > 0 {
			req["schedule_times"] = scheduleTimes
		}
		if len(scheduleDays) > 0 {
			req["schedule_days"] = scheduleDays
		}
		if capacityID != "" {
			req["capacity_id"] = capacityID
		}
		if folderPath != "" {
			req["import_folder_path"] = folderPath
		}
		if workspaceID != "" {
			req["workspace_id"] = workspaceID
		}

		idempotencyKey := uuid.New().String()
		client := NewClient(apiURL)

		var resp TaskRef
		err := postWithHeaders(client, "/v1/provisionings", req, &resp, map[string]string{
			"Idempotency-Key": idempotencyKey,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Provisioning task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
		fmt.Printf("Check status: wpsctl task watch %s\n", resp.TaskID)
	},
}

var provGetCmd = &cobra.Command{
	Use:   "get <provisioning-id>",
	Short: "Get provisioning details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var p ProvisioningRow
		if err := client.Get("/v1/provisionings/"+args[0], &p); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(p)
	},
}

var provListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisionings",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp ProvisioningListResponse
		if err := client.Get("/v1/provisionings", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Provisionings)
	},
}

var provWatchCmd = &cobra.Command{
	Use:   "watch <provisioning-id>",
	Short: "Watch a provisioning until it settles",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		for {
			var p ProvisioningRow
			if err := client.Get("/v1/provisionings/"+args[0], &p); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Provisioning %s: %s\n", p.ProvisioningID[:8], p.State)

			if p.State == "READY" || p.State == "PARTIAL" || p.State == "FAILED" || p.State == "DELETED" {
				printResult(p)
				break
			}

			time.Sleep(2 * time.Second)
		}
	},
}

var provRefreshCmd = &cobra.Command{
	Use:   "refresh <provisioning-id>",
	Short: "Trigger a dataset refresh",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		if err := client.Post("/v1/provisionings/"+args[0]+"/refresh", nil, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Refresh task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

var provDeleteCmd = &cobra.Command{
	Use:   "delete <provisioning-id>",
	Short: "Decommission a provisioned workspace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp TaskRef
		if err := client.Delete("/v1/provisionings/"+args[0], &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if resp.TaskID == "" {
			fmt.Printf("Provisioning %s already deleted.\n", args[0])
			return
		}
		fmt.Printf("Delete task created.\n")
		fmt.Printf("Task ID: %s\n", resp.TaskID)
	},
}

func init() {
	provCreateCmd.Flags().StringVar(&tenantFile, "tenant-file", "", "JSON file with tenant warehouse credentials")
	provCreateCmd.Flags().StringSliceVar(&scheduleTimes, "schedule-time", nil, "Refresh schedule time (HH:MM, repeatable)")
	provCreateCmd.Flags().StringSliceVar(&scheduleDays, "schedule-day", nil, "Refresh schedule day (repeatable)")
	provCreateCmd.Flags().StringVar(&capacityID, "capacity", "", "Capacity id to assign the workspace to")
	provCreateCmd.Flags().StringVar(&folderPath, "folder", "", "Drive folder path for the imported package")
	provCreateCmd.Flags().StringVar(&workspaceID, "workspace", "", "Existing workspace id to import into")

	provisioningCmd.AddCommand(provCreateCmd, provGetCmd, provListCmd, provWatchCmd, provRefreshCmd, provDeleteCmd)
	rootCmd.AddCommand(provisioningCmd)
}

func postWithHeaders(client *Client, path string, body interface{}, out interface{}, headers map[string]string) error {
	var reqBody io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewReader(b)
	}
	req, _ := http.NewRequest("POST", client.baseURL+path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return parseResponse(resp, out)
}
