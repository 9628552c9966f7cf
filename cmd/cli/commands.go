package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rofiliofernandes/somudai/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development access token",
		Long: `Sign an access token for <user-id> with the server's JWT secret.
The secret is read from --jwt-secret, JWT_SECRET, or the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.v.GetString("jwt_secret")
			if secret == "" {
				return errors.New("a JWT secret is required (--jwt-secret or JWT_SECRET)")
			}

			svc := auth.NewService([]byte(secret), clockwork.NewRealClock())
			svc.SetTTL(ttl)
			token, expiresAt, err := svc.GenerateToken(args[0], role)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(out, map[string]interface{}{
					"token":      token,
					"user_id":    args[0],
					"role":       role,
					"expires_at": expiresAt.UTC(),
				})
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role claim to embed (e.g. admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	cmd.Flags().String("jwt-secret", "", "HS256 signing secret")
	_ = a.v.BindPFlag("jwt_secret", cmd.Flags().Lookup("jwt-secret"))
	_ = a.v.BindEnv("jwt_secret", "JWT_SECRET")

	return cmd
}

func newMessagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"message", "msg"},
		Short:   "Direct messaging commands",
	}

	send := &cobra.Command{
		Use:   "send <user-id> <text...>",
		Short: "Send a direct message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			msg, err := a.client().SendMessage(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), msg)
			}
			printSuccess(cmd.OutOrStdout(), "Sent message #%d in conversation %s", msg.Seq, msg.ConversationID)
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show the conversation history with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := a.client().GetMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(out, msgs)
			}
			if len(msgs) == 0 {
				printInfo(out, "No messages with %s yet.", args[0])
				return nil
			}
			rows := make([][]string, 0, len(msgs))
			for _, m := range msgs {
				rows = append(rows, []string{
					fmt.Sprint(m.Seq),
					m.CreatedAt.Local().Format(time.DateTime),
					m.From(),
					m.Body,
				})
			}
			return printTable(out, []string{"#", "SENT", "FROM", "MESSAGE"}, rows)
		},
	}

	cmd.AddCommand(send, history)
	return cmd
}

func newConversationsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"inbox"},
		Short:   "List your conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := a.client().ListConversations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(out, convs)
			}
			if len(convs) == 0 {
				printInfo(out, "No conversations yet.")
				return nil
			}
			rows := make([][]string, 0, len(convs))
			for _, c := range convs {
				peer := c.PeerID
				if c.Peer != nil && c.Peer.Username != "" {
					peer = c.Peer.Username
				}
				last := "-"
				if c.LastMessageAt != nil {
					last = c.LastMessageAt.Local().Format(time.DateTime)
				}
				status := "offline"
				if c.Online {
					status = "online"
				}
				rows = append(rows, []string{peer, status, fmt.Sprint(c.MessageCount), last})
			}
			return printTable(out, []string{"PEER", "STATUS", "MESSAGES", "LAST"}, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum conversations to show")
	return cmd
}

func newOnlineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "online <user-id>...",
		Short: "Check which users are online",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := a.client().OnlineStatus(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(out, statuses)
			}
			ids := make([]string, 0, len(statuses))
			for id := range statuses {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				status := "offline"
				if statuses[id] {
					status = "online"
				}
				rows = append(rows, []string{id, status})
			}
			return printTable(out, []string{"USER", "STATUS"}, rows)
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Health(cmd.Context()); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "%s is healthy", a.v.GetString("server"))
			return nil
		},
	}
}
