package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sagechat/sage/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

func init() {
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStorageApp(cmd.Context(), runSessionsList)
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorageApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runSessionsShow(ctx, a, args[0])
			})
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorageApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runSessionsRename(ctx, a, args[0], strings.Join(args[1:], " "))
			})
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and all its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorageApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runSessionsDelete(ctx, a, args[0])
			})
		},
	})
	rootCmd.AddCommand(sessionsCmd)
}

func withStorageApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := newStorageApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runSessionsList(ctx context.Context, a *app) error {
	sessions, err := a.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Start one with: sage chat")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTOKENS\tUPDATED")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			sess.ID, sess.Title, sess.TotalTokens, formatTime(sess.UpdatedAt))
	}
	return w.Flush()
}

func runSessionsShow(ctx context.Context, a *app, rawID string) error {
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", rawID, err)
	}

	if _, err := a.sessions.List(ctx); err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	msgs, err := a.sessions.Messages(ctx, sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", sess.ID)
	fmt.Printf("Title:   %s\n", sess.Title)
	fmt.Printf("Tokens:  %d\n", sess.TotalTokens)
	fmt.Printf("Created: %s\n\n", formatTime(sess.CreatedAt))

	for _, msg := range msgs {
		role := "You"
		if msg.Role == session.RoleAssistant {
			role = "Sage"
		}
		fmt.Printf("[%s] %s\n%s\n\n", formatTime(msg.CreatedAt), role, msg.Text)
	}
	return nil
}

func runSessionsRename(ctx context.Context, a *app, rawID, title string) error {
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", rawID, err)
	}
	if _, err := a.sessions.List(ctx); err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if err := a.sessions.Rename(ctx, sessionID, title); err != nil {
		return err
	}
	fmt.Printf("Renamed %s to %q\n", sessionID, title)
	return nil
}

func runSessionsDelete(ctx context.Context, a *app, rawID string) error {
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", rawID, err)
	}
	if _, err := a.sessions.List(ctx); err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if err := a.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	// Drop a stale pointer to the deleted session.
	if saved, err := session.LoadCurrentSessionID(); err == nil && saved != nil && *saved == sessionID {
		_ = session.ClearCurrentSessionID()
	}

	fmt.Printf("Deleted %s\n", sessionID)
	return nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
