package main

import (
	"fmt"
	"io"

	"github.com/Adda-Baaj/coupon-harvester/internal/config"
	"github.com/Adda-Baaj/coupon-harvester/internal/frontier"
	"github.com/Adda-Baaj/coupon-harvester/internal/records"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

type configLoader func(envFile string) (*config.Config, error)

// cli carries the configuration resolved by the root command to its subcommands.
type cli struct {
	load    configLoader
	envFile string
	cfg     *config.Config
}

func newRootCmd(load configLoader) *cobra.Command {
	if load == nil {
		load = config.LoadFrom
	}
	c := &cli{load: load}

	root := &cobra.Command{
		Use:           "couponctl",
		Short:         "Inspects and maintains the coupon harvester's frontier and database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load(c.envFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", config.DefaultEnvFile, "env file read before the environment")

	root.AddCommand(c.frontierCmd(), c.couponsCmd(), c.detailsCmd(), c.migrateCmd())
	return root
}

func (c *cli) openFrontier(details bool) (frontier.Store, error) {
	path := c.cfg.CouponFrontierPath
	if details {
		path = c.cfg.DetailFrontierPath
	}
	return frontier.NewStore(c.cfg.FrontierType, path)
}

func (c *cli) openDB() (*sqlx.DB, error) {
	return records.Open(c.cfg.DatabasePath)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
