package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	vibechat "github.com/vibechat-dev/vibechat-go"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(createCmd)
}

var chatsCmd = &cobra.Command{
	Use:          "chats",
	Short:        "List your chats",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		coord, _, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer coord.SignOut()

		if err := coord.RefreshChats(ctx); err != nil {
			return fmt.Errorf("failed to fetch chats: %w", err)
		}

		chats := coord.Chats()
		if len(chats) == 0 {
			printInfo("Nessuna chat. Crea una nuova conversazione con 'vibechat create <username>'.")
			return nil
		}

		// One-shot listing: resolve names up front instead of waiting on
		// the background resolution.
		seen := map[string]struct{}{}
		var ids []string
		for _, c := range chats {
			for _, id := range c.Participants {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		if err := coord.Profiles().ResolveNow(ctx, ids); err != nil {
			printInfo("some participants could not be resolved")
		}

		for _, c := range chats {
			preview := c.LastMessagePreview
			if preview == "" {
				preview = "Nessun messaggio"
			}
			fmt.Printf("%s  %s\n    %s\n",
				styles.Bold.Render(coord.DisplayTitle(c)),
				styles.Subtle.Render(c.ID),
				styles.Subtle.Render(preview),
			)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:          "create <username>",
	Short:        "Start a direct chat with another user",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		coord, _, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer coord.SignOut()

		if err := coord.CreateChat(ctx, args[0]); err != nil {
			if vibechat.IsValidation(err) {
				if n := coord.Notice(); n != nil {
					printError("%s", n.Text)
					return fmt.Errorf("chat not created")
				}
			}
			return fmt.Errorf("failed to create chat: %w", err)
		}
		printSuccess("✓ Chat created", fmt.Sprintf("You can now chat with %s.", args[0]))
		return nil
	},
}
