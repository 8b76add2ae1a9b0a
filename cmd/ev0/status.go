package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ternarybob/ev0/internal/services/executions"
	"github.com/ternarybob/ev0/internal/storage"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the newest execution record of each bot",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the projection as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	service := executions.NewService(storage.NewExecutionLogStore(logger, config), nil, logger)

	projection, err := service.Status(cmd.Context())
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(projection)
	}

	keys := make([]string, 0, len(projection))
	for key := range projection {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOT\tSTATUS\tLAST RUN")
	for _, key := range keys {
		record := projection[key]
		lastRun := "-"
		if ts, ok := record.Timestamp(); ok {
			lastRun = ts.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, record.Status, lastRun)
	}
	return tw.Flush()
}
