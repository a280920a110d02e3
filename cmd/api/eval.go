package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stockdesk/backend/internal/evaluation"
	appLogger "github.com/stockdesk/backend/pkg/logger"
)

var evalCmd = &cobra.Command{
	Use:   "eval [dataset.json]",
	Short: "Check routing and grounding against a labelled question set",
	Long: `Replays each question through the router and the fact assembler and
compares the routed domain, fact type and found flag with the labels.
Questions that no rule routes are sent to the classifier.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func runEval(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	dataset, err := evaluation.LoadDatasetFromJSON(data)
	if err != nil {
		return err
	}

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

	report, err := evaluation.NewEvaluator(svc.router, svc.facts).RunDatasetEvaluation(ctx, dataset)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), evaluation.GenerateReport(report))
	if report.PassedCount < report.TotalQuestions {
		return fmt.Errorf("%d of %d questions failed", report.TotalQuestions-report.PassedCount, report.TotalQuestions)
	}
	return nil
}
