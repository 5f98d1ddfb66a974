package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/pipeline"
)

var (
	answerType       string
	answerText       string
	answerScreenshot string
	answerDocRef     string
	answerNoLearn    bool
	expireTTLHours   int
	listStatus       string
)

var answerCmd = &cobra.Command{
	Use:   "answer <clarification-id>",
	Short: "Answer a pending clarification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		allow := !answerNoLearn
		res, err := env.Pipeline.AnswerClarification(cmd.Context(), pipeline.AnswerRequest{
			ClarificationID: args[0],
			ResponseType:    model.ResponseType(answerType),
			ResponseText:    answerText,
			ScreenshotPath:  answerScreenshot,
			DocumentRef:     answerDocRef,
			AllowLearning:   &allow,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip <clarification-id>",
	Short: "Skip a pending clarification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.SkipClarification(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire clarifications left pending past the TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		hours := expireTTLHours
		if hours <= 0 {
			hours = cfg.Learning.ClarificationTTLHours
		}
		n, err := env.Pipeline.ExpireClarifications(cmd.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]int{"expired": n})
	},
}

var clarificationsCmd = &cobra.Command{
	Use:   "clarifications <extraction-id>",
	Short: "List the clarifications of an extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Pipeline.ListClarifications(cmd.Context(), args[0], model.ClarificationStatus(listStatus))
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), cs)
	},
}

func init() {
	answerCmd.Flags().StringVar(&answerType, "type", string(model.ResponseText), "response type (text, screenshot, document_reference, selection)")
	answerCmd.Flags().StringVar(&answerText, "text", "", "answer text")
	answerCmd.Flags().StringVar(&answerScreenshot, "screenshot", "", "screenshot path")
	answerCmd.Flags().StringVar(&answerDocRef, "document-ref", "", "document reference")
	answerCmd.Flags().BoolVar(&answerNoLearn, "no-learn", false, "do not record the answer as a learned correction")

	expireCmd.Flags().IntVar(&expireTTLHours, "ttl-hours", 0, "pending age in hours before expiry (default from config)")

	clarificationsCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")

	rootCmd.AddCommand(answerCmd, skipCmd, expireCmd, clarificationsCmd)
}
