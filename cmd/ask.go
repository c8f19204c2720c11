package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagechat/sage/internal/session"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	question := strings.TrimSpace(strings.Join(args, " "))
	answer, err := a.chat.ProcessTurn(ctx, sessionID, question)
	if err != nil {
		printTurnError(err)
		if errors.Is(err, session.ErrCacheAhead) {
			fmt.Println(answer)
			return nil
		}
		return err
	}

	fmt.Println(answer)
	return nil
}
