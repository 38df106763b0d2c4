package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Inspect and retry webhook deliveries",
}

var listDeliveriesCmd = &cobra.Command{
	Use:   "list",
	Short: "List delivery records",
	Long: `List delivery records, newest first. All filter flags are optional.

Example:
  hookctl delivery list --endpoint 4f1c... --status failed --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if v, _ := cmd.Flags().GetString("endpoint"); v != "" {
			q.Set("endpoint_id", v)
		}
		if v, _ := cmd.Flags().GetString("event"); v != "" {
			q.Set("event", v)
		}
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			q.Set("status", v)
		}
		if v, _ := cmd.Flags().GetString("from"); v != "" {
			q.Set("from", v)
		}
		if v, _ := cmd.Flags().GetString("to"); v != "" {
			q.Set("to", v)
		}
		if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
			q.Set("limit", strconv.Itoa(v))
		}
		if v, _ := cmd.Flags().GetInt("offset"); v > 0 {
			q.Set("offset", strconv.Itoa(v))
		}

		path := "/v1/deliveries"
		if enc := q.Encode(); enc != "" {
			path += "?" + enc
		}
		out, err := apiRequest(http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("failed to list deliveries: %w", err)
		}
		printJSON(out)
		return nil
	},
}

var getDeliveryCmd = &cobra.Command{
	Use:   "get [delivery-id]",
	Short: "Show a single delivery record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest(http.MethodGet, "/v1/deliveries/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to get delivery: %w", err)
		}
		printJSON(out)
		return nil
	},
}

var retryDeliveryCmd = &cobra.Command{
	Use:   "retry [delivery-id]",
	Short: "Re-attempt a failed or scheduled delivery immediately",
	Long: `Re-attempt a delivery without waiting for its scheduled retry time.
Already-delivered records and records out of attempts are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest(http.MethodPost, "/v1/deliveries/"+args[0]+"/retry", nil)
		if err != nil {
			return fmt.Errorf("failed to retry delivery: %w", err)
		}
		printJSON(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(listDeliveriesCmd)
	deliveryCmd.AddCommand(getDeliveryCmd)
	deliveryCmd.AddCommand(retryDeliveryCmd)

	listDeliveriesCmd.Flags().String("endpoint", "", "filter by endpoint id")
	listDeliveriesCmd.Flags().String("event", "", "filter by event type")
	listDeliveriesCmd.Flags().String("status", "", "filter by status (pending, delivered, retried, failed)")
	listDeliveriesCmd.Flags().String("from", "", "only records created at or after this RFC3339 time")
	listDeliveriesCmd.Flags().String("to", "", "only records created at or before this RFC3339 time")
	listDeliveriesCmd.Flags().Int("limit", 0, "max records to return")
	listDeliveriesCmd.Flags().Int("offset", 0, "records to skip")
}
