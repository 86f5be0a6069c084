package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := newSessionClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		client.manager.Logout(ctx)
		fmt.Fprintln(os.Stderr, "signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
