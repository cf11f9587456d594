package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:          "users <query>",
	Short:        "Search for users",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client, _, err := newClient()
		if err != nil {
			return err
		}

		users, err := client.SearchUsers(ctx, args[0])
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(users) == 0 {
			printInfo("No users match %q.", args[0])
			return nil
		}

		for _, u := range users {
			marker := ""
			if u.Online {
				marker = "  " + styles.Online.Render("• Online")
			} else if u.LastSeen != nil {
				marker = "  " + styles.Subtle.Render("last seen "+u.LastSeen.Local().Format("Jan 2 15:04"))
			}
			fmt.Printf("%s  %s%s\n",
				styles.Bold.Render("@"+u.Username),
				u.DisplayName,
				marker,
			)
		}
		return nil
	},
}
