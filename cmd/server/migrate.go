package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/fintrack/store/sqlite"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawStore(func(s *sqlite.Store) error {
				if err := s.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, s)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all data)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawStore(func(s *sqlite.Store) error {
				if err := s.MigrateDown(); err != nil {
					return err
				}
				return printVersion(cmd, s)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawStore(func(s *sqlite.Store) error {
				return printVersion(cmd, s)
			})
		},
	})

	return cmd
}

// withRawStore opens the database without applying migrations.
func withRawStore(fn func(s *sqlite.Store) error) error {
	s, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()
	return fn(s)
}

func printVersion(cmd *cobra.Command, s *sqlite.Store) error {
	v, dirty, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if dirty {
		fmt.Fprintf(out, "schema version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(out, "schema version %d\n", v)
	return nil
}
