package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Publish application events",
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type] [json-data]",
	Short: "Publish an event for fan-out to subscribed endpoints",
	Long: `Publish an application event. The server fans it out asynchronously;
a successful publish says nothing about endpoint outcomes.

Example:
  hookctl event publish order.created '{"order_id":"ord_123","total":4200}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("data is not valid JSON")
		}

		out, err := apiRequest(http.MethodPost, "/v1/events", map[string]any{
			"event_type": args[0],
			"data":       json.RawMessage(args[1]),
		})
		if err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		if outputJSON {
			printJSON(out)
			return nil
		}
		fmt.Printf("Accepted event: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(publishEventCmd)
}
