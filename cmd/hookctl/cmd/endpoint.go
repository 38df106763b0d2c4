package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manage webhook endpoints",
	Long:  `Register and manage the webhook endpoints that receive event deliveries.`,
}

var createEndpointCmd = &cobra.Command{
	Use:   "create [url]",
	Short: "Register a new webhook endpoint",
	Long: `Register a new webhook endpoint subscribed to the given event types.

The signing secret is printed once in the response and never again.

Example:
  hookctl endpoint create https://example.com/webhook --events order.created,order.shipped`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, _ := cmd.Flags().GetStringSlice("events")

		out, err := apiRequest(http.MethodPost, "/v1/endpoints", map[string]any{
			"url":    args[0],
			"events": events,
		})
		if err != nil {
			return fmt.Errorf("failed to create endpoint: %w", err)
		}
		printJSON(out)
		return nil
	},
}

var listEndpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List your webhook endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest(http.MethodGet, "/v1/endpoints", nil)
		if err != nil {
			return fmt.Errorf("failed to list endpoints: %w", err)
		}
		printJSON(out)
		return nil
	},
}

var getEndpointCmd = &cobra.Command{
	Use:   "get [endpoint-id]",
	Short: "Show a single endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest(http.MethodGet, "/v1/endpoints/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to get endpoint: %w", err)
		}
		printJSON(out)
		return nil
	},
}

var updateEndpointCmd = &cobra.Command{
	Use:   "update [endpoint-id]",
	Short: "Update an endpoint's URL, events, or status",
	Long: `Update an endpoint. Only the provided flags change; everything else
is left as is. Setting --status active on a disabled or failing endpoint
resets its failure counter.

Example:
  hookctl endpoint update 4f1c... --status disabled`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := map[string]any{}
		if cmd.Flags().Changed("url") {
			u, _ := cmd.Flags().GetString("url")
			patch["url"] = u
		}
		if cmd.Flags().Changed("events") {
			evs, _ := cmd.Flags().GetStringSlice("events")
			patch["events"] = evs
		}
		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			patch["status"] = s
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update: pass --url, --events, or --status")
		}

		out, err := apiRequest(http.MethodPatch, "/v1/endpoints/"+args[0], patch)
		if err != nil {
			return fmt.Errorf("failed to update endpoint: %w", err)
		}
		printJSON(out)
		return nil
	},
}

var deleteEndpointCmd = &cobra.Command{
	Use:   "delete [endpoint-id]",
	Short: "Delete an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest(http.MethodDelete, "/v1/endpoints/"+args[0], nil); err != nil {
			return fmt.Errorf("failed to delete endpoint: %w", err)
		}
		fmt.Printf("Deleted endpoint: %s\n", args[0])
		return nil
	},
}

var testEndpointCmd = &cobra.Command{
	Use:   "test [endpoint-id]",
	Short: "Send a synthetic test event to an endpoint",
	Long: `Send a signed endpoint.test event through the full delivery path and
print the resulting delivery record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest(http.MethodPost, "/v1/endpoints/"+args[0]+"/test", nil)
		if err != nil {
			return fmt.Errorf("failed to test endpoint: %w", err)
		}
		if outputJSON {
			printJSON(out)
			return nil
		}
		var rec struct {
			ID             string `json:"id"`
			Status         string `json:"status"`
			ResponseStatus *int   `json:"response_status"`
		}
		if err := json.Unmarshal(out, &rec); err != nil {
			printJSON(out)
			return nil
		}
		fmt.Printf("Delivery: %s\n", rec.ID)
		fmt.Printf("  Status: %s\n", rec.Status)
		if rec.ResponseStatus != nil {
			fmt.Printf("  HTTP status: %d\n", *rec.ResponseStatus)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointCmd)
	endpointCmd.AddCommand(createEndpointCmd)
	endpointCmd.AddCommand(listEndpointsCmd)
	endpointCmd.AddCommand(getEndpointCmd)
	endpointCmd.AddCommand(updateEndpointCmd)
	endpointCmd.AddCommand(deleteEndpointCmd)
	endpointCmd.AddCommand(testEndpointCmd)

	createEndpointCmd.Flags().StringSlice("events", nil, "event types to subscribe to (comma separated)")
	createEndpointCmd.MarkFlagRequired("events")

	updateEndpointCmd.Flags().String("url", "", "new destination URL")
	updateEndpointCmd.Flags().StringSlice("events", nil, "replacement event type list")
	updateEndpointCmd.Flags().String("status", "", "new status (active or disabled)")
}
