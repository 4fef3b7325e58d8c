package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []ProvisioningRow:
		if len(data) == 0 {
			fmt.Println("No provisionings found.")
			return
		}
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tWORKSPACE\tREFRESHED\tCREATED")
		for _, p := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				p.ProvisioningID[:8], p.Name, p.State, p.WorkspaceID, refreshedLabel(p.RefreshCompleted), p.CreatedAt)
		}
	case ProvisioningRow:
		fmt.Fprintf(w, "Provisioning ID:\t%s\n", data.ProvisioningID)
		fmt.Fprintf(w, "Name:\t%s\n", data.Name)
		fmt.Fprintf(w, "Template Group:\t%s\n", data.TemplateGroupID)
		fmt.Fprintf(w, "State:\t%s\n", data.State)
		fmt.Fprintf(w, "Workspace ID:\t%s\n", data.WorkspaceID)
		fmt.Fprintf(w, "Dataset ID:\t%s\n", data.DatasetID)
		fmt.Fprintf(w, "Datasource ID:\t%s\n", data.DatasourceID)
		if data.FolderID != "" {
			fmt.Fprintf(w, "Folder ID:\t%s\n", data.FolderID)
		}
		fmt.Fprintf(w, "Refresh Completed:\t%s\n", refreshedLabel(data.RefreshCompleted))
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
	case []TaskRow:
		if len(data) == 0 {
			fmt.Println("No tasks found.")
			return
		}
		fmt.Fprintln(w, "TASK ID\tOP\tSTATUS\tATTEMPT\tCREATED")
		for _, t := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", t.TaskID[:8], t.Op, t.Status, t.Attempt, t.MaxAttempts, t.CreatedAt)
		}
	case TaskRow:
		fmt.Fprintf(w, "Task ID:\t%s\n", data.TaskID)
		fmt.Fprintf(w, "Provisioning ID:\t%s\n", data.ProvisioningID)
		fmt.Fprintf(w, "Op:\t%s\n", data.Op)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
		fmt.Fprintf(w, "Attempt:\t%d/%d\n", data.Attempt, data.MaxAttempts)
		if data.Result != nil {
			fmt.Fprintf(w, "Result:\t%v\n", data.Result)
		}
		if data.Error != nil {
			fmt.Fprintf(w, "Error:\t%v\n", data.Error)
		}
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func refreshedLabel(v *bool) string {
	if v == nil {
		return "-"
	}
	if *v {
		return "yes"
	}
	return "no"
}
