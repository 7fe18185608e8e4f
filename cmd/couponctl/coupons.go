package main

import (
	"fmt"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/records"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (c *cli) couponsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupons",
		Short: "Inspects stored coupons.",
	}

	var source string
	list := &cobra.Command{
		Use:   "list",
		Short: "Lists stored coupons.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			coupons, err := records.NewCouponRepository(db).List(cmd.Context(), source)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Source", "Title", "Offer", "Code", "Last seen"})
			for _, cp := range coupons {
				seen := ""
				if !cp.LastSeen.IsZero() {
					seen = cp.LastSeen.Format(records.TimeLayout)
				}
				t.AppendRow(table.Row{cp.ID, domain.Deref(cp.SourceName), domain.Deref(cp.Title),
					domain.Deref(cp.Offer), domain.Deref(cp.Code), seen})
			}
			t.AppendFooter(table.Row{"", "", "", "", "Total", len(coupons)})
			t.Render()
			return nil
		},
	}
	list.Flags().StringVar(&source, "source", "", "only coupons of this source name")

	prune := &cobra.Command{
		Use:   "prune <source>",
		Short: "Deletes the coupons of a source that were not seen today.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := records.NewCouponRepository(db).PruneStaleForSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d coupons for %s\n", n, args[0])
			return nil
		},
	}

	cmd.AddCommand(list, prune)
	return cmd
}

func (c *cli) detailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details",
		Short: "Inspects stored company details.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists stored company details.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			details, err := records.NewDetailRepository(db, c.cfg.DetailDedup).List(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Company", "Icon", "About"})
			for _, d := range details {
				t.AppendRow(table.Row{d.ID, d.SourceName, d.IconURL, d.AboutText})
			}
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
			t.Render()
			return nil
		},
	})
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database migrations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := records.Migrate(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}
