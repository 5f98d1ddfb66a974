package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/learning"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/pipeline"
)

var (
	correctOriginal string
	rulesType       string
	rulesActive     bool
)

var correctCmd = &cobra.Command{
	Use:   "correct <item-description> <field> <corrected-value>",
	Short: "Record a correction to an extracted field",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		req := pipeline.CorrectionRequest{
			ItemDescription: args[0],
			FieldName:       args[1],
			CorrectedValue:  args[2],
		}
		if cmd.Flags().Changed("original") {
			req.OriginalValue = &correctOriginal
		}
		rule, err := env.Pipeline.RecordCorrection(cmd.Context(), req)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rule)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Seed relevance rules from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := learning.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		created, skipped, err := env.Pipeline.SeedRules(cmd.Context(), rules)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete",
			zap.String("file", args[0]),
			zap.Int("created", created),
			zap.Int("skipped", skipped),
		)
		return writeJSON(cmd.OutOrStdout(), map[string]int{"created": created, "skipped": skipped})
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List learning rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		defer env.Close()

		rules, err := env.Pipeline.ListRules(cmd.Context(), model.LearningType(rulesType), rulesActive)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rules)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context(), "admin")
		if err != nil {
			return err
		}
		env.Close()
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	correctCmd.Flags().StringVar(&correctOriginal, "original", "", "value the extractor produced")
	rulesCmd.Flags().StringVar(&rulesType, "type", "", "filter by learning type (correction, relevance_rule)")
	rulesCmd.Flags().BoolVar(&rulesActive, "active", false, "only active rules")
	rootCmd.AddCommand(correctCmd, seedCmd, rulesCmd, migrateCmd)
}
