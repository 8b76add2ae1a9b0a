package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/ev0/internal/common"
)

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ev0 version %s\n", common.GetFullVersion())
	},
}
