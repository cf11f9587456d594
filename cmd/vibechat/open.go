package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	vibechat "github.com/vibechat-dev/vibechat-go"
)

func init() {
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <chat-id>",
	Short: "Open a chat and talk in it",
	Long: `Open a conversation in the terminal. New messages appear as they
arrive (over the push channel, or within one poll interval). Type a line to
send it. Commands:

  /file <path>   send an image or audio file
  /quit          leave the conversation`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	coord, _, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer coord.SignOut()

	chatID := args[0]
	_ = coord.RefreshChats(ctx)

	var title string
	for _, c := range coord.Chats() {
		if c.ID == chatID {
			title = coord.DisplayTitle(c)
			break
		}
	}
	if title == "" {
		title = "Chat"
	}
	fmt.Println(styles.Bold.Render(title) + "  " + styles.Subtle.Render(chatID))
	printInfo("Type to send, /file <path> for media, /quit to leave.")

	var mu sync.Mutex
	printed := 0
	render := func() {
		mu.Lock()
		defer mu.Unlock()
		msgs := coord.Messages()
		if len(msgs) < printed {
			// Full replacement shrank the history (e.g. selection reset).
			printed = 0
		}
		for ; printed < len(msgs); printed++ {
			printMessage(coord, msgs[printed])
		}
	}
	coord.OnUpdate(render)
	coord.OnNotice(func(n vibechat.Notice) {
		printError("%s", n.Text)
	})

	coord.SelectChat(vibechat.Chat{ID: chatID})

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/file "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/file "))
			if err := sendFile(ctx, coord, path); err != nil {
				printError("%v", err)
			}
		default:
			// The input line is already consumed (optimistic clear); on a
			// failed send we echo it back so it can be retried.
			if err := coord.Send(ctx, line); err != nil {
				printError("message not sent: %v", err)
				fmt.Println(styles.Subtle.Render("unsent: " + line))
			}
		}
	}
	return scanner.Err()
}

func printMessage(coord *vibechat.Coordinator, m vibechat.Message) {
	body := m.Content
	switch m.Kind {
	case vibechat.KindImage:
		body = "[immagine] " + m.MediaURL
	case vibechat.KindAudio:
		body = "[audio] " + m.MediaURL
	}

	switch coord.ClassifyAuthor(m) {
	case vibechat.AuthorMine:
		fmt.Println(styles.Mine.Render("you: " + body))
	case vibechat.AuthorTheirs:
		name := m.SenderID
		if u, ok := coord.Profile(m.SenderID); ok {
			name = u.DisplayName
		}
		fmt.Println(styles.Theirs.Render(name + ": " + body))
	default:
		fmt.Println(styles.Subtle.Render("?: " + body))
	}
}

func sendFile(ctx context.Context, coord *vibechat.Coordinator, path string) error {
	kind, err := kindForFile(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read file: %w", err)
	}
	return coord.SendMedia(ctx, kind, filepath.Base(path), data)
}

func kindForFile(path string) (vibechat.Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return vibechat.KindImage, nil
	case ".mp3", ".wav", ".ogg", ".m4a":
		return vibechat.KindAudio, nil
	default:
		return "", fmt.Errorf("unsupported file type %q (images and audio only)", filepath.Ext(path))
	}
}
