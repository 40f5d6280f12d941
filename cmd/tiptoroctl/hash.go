package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tiptoro/tiptoro-api/internal/service/auth"
)

// newHashPasswordCmd prints bcrypt hashes for seeding users directly in the
// database.
func newHashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password PASSWORD...",
		Short: "Print bcrypt hashes for the given passwords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, password := range args {
				hash, err := auth.HashPassword(password, cost)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 10, "bcrypt cost")
	return cmd
}
