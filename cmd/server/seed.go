package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/fintrack/seed"
)

func seedCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "seed [scenario]",
		Short: "Load a demo scenario into the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list || len(args) == 0 {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, s := range seed.Scenarios {
					fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Description)
				}
				return w.Flush()
			}

			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required to issue the demo session token")
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			loader := &seed.Loader{
				Auth:       a.auth,
				Ledger:     a.ledger,
				Aggregator: a.aggregator,
				Logger:     logger,
			}
			res, err := loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Loaded %s: %d transactions, %d invoices\n", res.Scenario, len(res.Transactions), len(res.Invoices))
			fmt.Fprintf(out, "Sign in as %s / %s\n", res.Email, seed.DemoPassword)
			for _, inv := range res.Invoices {
				fmt.Fprintf(out, "  %s  %-9s  %s  %s\n", inv.Number, inv.Status, inv.Total.StringFixed(2), inv.ClientName)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list available scenarios")
	return cmd
}
