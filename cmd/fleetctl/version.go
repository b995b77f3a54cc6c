package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print fleetctl's version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("fleetctl dev")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
