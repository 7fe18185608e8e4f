package main

import (
	"fmt"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (c *cli) frontierCmd() *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "frontier",
		Short: "Shows or resets the list of shop pages to visit.",
	}
	cmd.PersistentFlags().BoolVar(&details, "details", false, "use the company detail frontier")

	printEntries := func(cmd *cobra.Command, pendingOnly bool) error {
		store, err := c.openFrontier(details)
		if err != nil {
			return err
		}
		defer store.Close()

		var entries []domain.FrontierEntry
		if pendingOnly {
			entries, err = store.Pending()
		} else {
			entries, err = store.Load()
		}
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"#", "URL", "Label", "Scraped"})
		for i, e := range entries {
			t.AppendRow(table.Row{i + 1, e.URL, e.Label, e.Scraped})
		}
		t.AppendFooter(table.Row{"", "", "Total", len(entries)})
		t.Render()
		return nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Lists every frontier entry.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printEntries(cmd, false)
			},
		},
		&cobra.Command{
			Use:   "pending",
			Short: "Lists the entries not yet scraped in the current pass.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printEntries(cmd, true)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Marks every entry as not scraped so the next pass visits all of them.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := c.openFrontier(details)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.ResetAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "frontier reset")
				return nil
			},
		},
	)
	return cmd
}
