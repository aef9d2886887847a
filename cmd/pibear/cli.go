package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "pibear",
		Short: "LINE companion bot with per-user memory and scheduled pushes",
		Long: strings.TrimSpace(`pibear runs 皮熊, a chat companion for LINE (and optionally Discord).

Use CLI commands to seed a workspace, run the webhook gateway and scheduler,
chat locally against the same dispatcher, and inspect schedules and usage.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVar(&configPathOverride, "config", "", "Config file path (default ~/.pibear/config.json)")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newScheduleCommand())
	root.AddCommand(newRankingCommand())
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newOnboardCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Initialize ~/.pibear config and workspace templates",
		Long: strings.TrimSpace(`Create the default configuration and seed the workspace with persona,
profile, schedule and phrase templates. Existing workspace files are never
overwritten; an existing config is kept unless --force is given.`),
		Example: strings.Join([]string{
			"  pibear onboard",
			"  pibear onboard --force",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(cmd.OutOrStdout(), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file with defaults")
	return cmd
}

func newGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the LINE webhook server, channels and scheduler",
		Long: strings.TrimSpace(`Start the HTTP gateway (/callback, /Pic, /health, /ready), the enabled
chat channels, the message dispatcher and the push scheduler.

SIGHUP reloads schedule.json; SIGINT or SIGTERM stops everything.`),
		Example: "  pibear gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context(), cmd.OutOrStdout(), debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newChatCommand() *cobra.Command {
	var (
		message string
		userID  string
		name    string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to 皮熊 locally through the same dispatcher",
		Long:  "Run an interactive local session or send a one-shot message without LINE.",
		Example: strings.Join([]string{
			"  pibear chat",
			"  pibear chat --user U123 --name 小明",
			"  pibear chat -m \"天氣\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.OutOrStdout(), chatOptions{
				Message: message,
				UserID:  userID,
				Name:    name,
				Debug:   debug,
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message to send")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli-user", "User id used for memory and usage")
	cmd.Flags().StringVarP(&name, "name", "n", "朋友", "Display name used for titles and cities")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, workspace files and channel readiness",
		Example: "  pibear status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
}

func newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect scheduled pushes",
		Long:  "List the daily message jobs from schedule.json or run the birthday check once.",
		Example: strings.Join([]string{
			"  pibear schedule list",
			"  pibear schedule check",
			"  pibear schedule check --send",
		}, "\n"),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List message jobs and their next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleList(cmd.OutOrStdout())
		},
	}

	var send bool
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run the birthday check once (dry-run unless --send)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleCheck(cmd.Context(), cmd.OutOrStdout(), send)
		},
	}
	checkCmd.Flags().BoolVar(&send, "send", false, "Deliver the greetings through the configured channel")

	cmd.AddCommand(listCmd, checkCmd)
	return cmd
}

func newRankingCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ranking",
		Short:   "Print today's usage ranking",
		Example: "  pibear ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRanking(cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Example: "  pibear version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
