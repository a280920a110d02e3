package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stockdesk/backend/internal/query"
	appLogger "github.com/stockdesk/backend/pkg/logger"
)

var (
	askUserID         string
	askConversationID string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question against the configured database",
	Long: `Runs a single question through the full pipeline, including quota and
budget checks, and prints the answer. Useful to check grounding locally.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUserID, "user", "cli", "user id the question is charged to")
	askCmd.Flags().StringVar(&askConversationID, "conversation", "", "continue an existing conversation")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := svc.engine.Ask(ctx, query.AskRequest{
		Question:       strings.Join(args, " "),
		UserID:         askUserID,
		ConversationID: askConversationID,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
	fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", resp.ConversationID)
	return nil
}
