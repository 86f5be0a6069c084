package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var errNotSignedIn = errors.New("not signed in; run `edustack login`")

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the signed-in user's profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := newSessionClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		client.manager.Wait()
		u := client.manager.Current()
		if u == nil {
			return errNotSignedIn
		}
		return printUser(u)
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
