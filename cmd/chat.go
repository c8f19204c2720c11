package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sagechat/sage/internal/chat"
	"github.com/sagechat/sage/internal/session"
)

var newSession bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&newSession, "new", false, "start a fresh session instead of resuming")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, err := resumeOrCreateSession(ctx, a)
	if err != nil {
		return err
	}

	fmt.Println("Sage ready. Type a question, /new for a fresh session, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/new":
			sess, err := a.sessions.Create(ctx)
			if err != nil && !errors.Is(err, session.ErrCacheAhead) {
				return err
			}
			sessionID = sess.ID
			if err := session.SaveCurrentSessionID(sessionID); err != nil {
				a.logger.Warn("saving current session", "error", err)
			}
			fmt.Println("Started a new session.")
			continue
		}

		answer, err := a.chat.ProcessTurn(ctx, sessionID, line)
		if err != nil {
			printTurnError(err)
			if !errors.Is(err, session.ErrCacheAhead) {
				continue
			}
		}
		fmt.Println()
		fmt.Println(answer)
		fmt.Println()
	}
	return scanner.Err()
}

// resumeOrCreateSession picks the session to chat in: the one recorded in
// the local state file when it still exists, otherwise a new one.
func resumeOrCreateSession(ctx context.Context, a *app) (uuid.UUID, error) {
	if !newSession {
		if saved, err := session.LoadCurrentSessionID(); err == nil && saved != nil {
			// Heal a stale state file pointing at a deleted session.
			if _, err := a.sessions.List(ctx); err != nil {
				return uuid.Nil, err
			}
			if _, err := a.sessions.Get(*saved); err == nil {
				return *saved, nil
			}
		}
	}

	sess, err := a.sessions.Create(ctx)
	if err != nil && !errors.Is(err, session.ErrCacheAhead) {
		return uuid.Nil, err
	}
	if err := session.SaveCurrentSessionID(sess.ID); err != nil {
		a.logger.Warn("saving current session", "error", err)
	}
	return sess.ID, nil
}

func printTurnError(err error) {
	switch {
	case errors.Is(err, chat.ErrBudgetExhausted):
		fmt.Fprintln(os.Stderr, "Your question is too long for the configured context budget. Shorten it or raise context_tokens.")
	case errors.Is(err, chat.ErrCircuitOpen):
		fmt.Fprintln(os.Stderr, "The model is failing repeatedly; waiting before retrying. Try again shortly.")
	case errors.Is(err, session.ErrCacheAhead):
		fmt.Fprintln(os.Stderr, "Warning: the answer was produced but could not be saved. It will be lost on restart.")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
