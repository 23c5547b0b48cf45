package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"registry-federation/internal/addition"
)

func syncCmd() *cobra.Command {
	var persist bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass and print the merged additions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			merged := a.engine.Run(cmd.Context())
			if persist {
				if err := a.baseline.Save(cmd.Context(), merged); err != nil {
					return fmt.Errorf("persisting baseline: %w", err)
				}
			}
			return printRecords(cmd, merged)
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "write the merged set back to the baseline store")
	return cmd
}

func additionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "additions <type>",
		Short: "Print the merged additions whose type contains <type>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return printRecords(cmd, a.engine.LoadAdditions(cmd.Context(), args[0]))
		},
	}
}

func printRecords(cmd *cobra.Command, records []addition.Record) error {
	if records == nil {
		records = []addition.Record{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
