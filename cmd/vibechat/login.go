package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	vibechat "github.com/vibechat-dev/vibechat-go"
)

var loginUsername string

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username to sign in with")
	loginCmd.SilenceUsage = true
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [server]",
	Short: "Sign in to a Vibe Chat server",
	Long: `Sign in with a username and display name and save the session locally.

The session is stored in ~/.vibechat/config.toml and re-established
automatically by all subsequent commands until you run 'vibechat logout'.

If server is not provided, the configured (or default) server is used.`,
	Example: `  # Sign in against the configured server
  $ vibechat login

  # Sign in against a specific server
  $ vibechat login http://chat.example.com:8000 -u alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) > 0 {
		cfg.Server.BaseURL = args[0]
	}

	if loginUsername == "" {
		prompt := &survey.Input{Message: "Username:"}
		if err := survey.AskOne(prompt, &loginUsername, survey.WithValidator(survey.Required)); err != nil {
			printError("failed to read username: %v", err)
			return fmt.Errorf("input failed")
		}
	}

	displayName := cfg.Session.DisplayName
	prompt := &survey.Input{Message: "Display name:", Default: displayName}
	if err := survey.AskOne(prompt, &displayName, survey.WithValidator(survey.Required)); err != nil {
		printError("failed to read display name: %v", err)
		return fmt.Errorf("input failed")
	}

	var opts []vibechat.ClientOption
	if cfg.Server.BaseURL != "" {
		opts = append(opts, vibechat.WithBaseURL(cfg.Server.BaseURL))
	}
	opts = append(opts, vibechat.WithLogger(newLogger()))
	client := vibechat.NewClient(opts...)

	printInfo("Connecting to %s...", client.BaseURL())

	coord := vibechat.NewCoordinator(client)
	if err := coord.SignIn(ctx, loginUsername, displayName); err != nil {
		printError("sign in failed: %v", err)
		return fmt.Errorf("sign in failed")
	}
	coord.SignOut()

	cfg.Session.Username = loginUsername
	cfg.Session.DisplayName = displayName
	if err := saveConfig(cfg); err != nil {
		printError("failed to save config: %v", err)
		return fmt.Errorf("config save failed")
	}

	path, _ := configPath()
	printSuccess("✓ Signed in", fmt.Sprintf("Username:      %s\nDisplay name:  %s\nConfig saved:  %s", loginUsername, displayName, path))
	fmt.Println()
	printInfo("Next steps:")
	fmt.Println(styles.Bold.Render("  vibechat chats            # list your chats"))
	fmt.Println(styles.Bold.Render("  vibechat open <chat-id>   # open a conversation"))
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Session = ConfigSession{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Session cleared.")
		return nil
	},
}
