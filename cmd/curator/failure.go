package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/spf13/cobra"
)

// failureReport is the line printed after a rejection is recorded.
type failureReport struct {
	CandidateID    uuid.UUID `json:"candidate_id"`
	Gate           string    `json:"gate"`
	RetryCount     int       `json:"retry_count"`
	Escalated      bool      `json:"escalated"`
	ReviewPriority int       `json:"review_priority,omitempty"`
}

// candidateArg accepts exactly one argument that parses as a UUID.
func candidateArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid candidate id %q: %w", args[0], err)
	}
	return nil
}

func newFailureCommand(cc *commandContext) *cobra.Command {
	failureCmd := &cobra.Command{
		Use:   "failure",
		Short: "Record and inspect validation gate rejections",
	}

	var gate, reason, details string
	recordCmd := &cobra.Command{
		Use:   "record <candidate-id>",
		Short: "Record a gate rejection, escalating to review past the retry ceiling",
		Args:  candidateArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidateID := uuid.MustParse(args[0])
			result := domain.GateResult{GateName: gate, Reason: reason}
			if details != "" {
				if !json.Valid([]byte(details)) {
					return fmt.Errorf("--details is not valid JSON")
				}
				result.Details = json.RawMessage(details)
			}

			return withApplication(cmd, cc, func(app *application) error {
				outcome, err := app.validation.RecordFailure(cmd.Context(), candidateID, result, app.retryPolicy)
				if err != nil {
					return err
				}
				report := failureReport{
					CandidateID: candidateID,
					Gate:        outcome.Failure.GateName,
					RetryCount:  outcome.Failure.RetryCount,
					Escalated:   outcome.Escalated,
				}
				if outcome.Review != nil {
					report.ReviewPriority = outcome.Review.Priority
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			})
		},
	}
	recordCmd.Flags().StringVar(&gate, "gate", "", "name of the rejecting gate")
	recordCmd.Flags().StringVar(&reason, "reason", "", "why the gate rejected the candidate")
	recordCmd.Flags().StringVar(&details, "details", "", "gate-specific JSON details")
	_ = recordCmd.MarkFlagRequired("gate")

	historyCmd := &cobra.Command{
		Use:   "history <candidate-id>",
		Short: "Print a candidate's recorded failures as JSON lines in retry order",
		Args:  candidateArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, cc, func(app *application) error {
				failures, err := app.validation.FailureHistory(cmd.Context(), uuid.MustParse(args[0]))
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, f := range failures {
					if err := enc.Encode(f); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	failureCmd.AddCommand(recordCmd, historyCmd)
	return failureCmd
}
