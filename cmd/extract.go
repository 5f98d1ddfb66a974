package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/pipeline"
)

var (
	extractProvider     string
	extractProductTypes []string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file-or-url>...",
	Short: "Extract line items from one or more documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		reader := document.RefReader{HTTP: document.NewHTTPReader(document.HTTPOptions{})}
		for _, path := range args {
			res, err := extractFile(ctx, env.Pipeline, reader, path, extractProvider, extractProductTypes)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractProvider, "provider", "", "preferred AI provider (auto, anthropic, openai, gemini)")
	extractCmd.Flags().StringSliceVar(&extractProductTypes, "product-type", nil, "product type filter (advisory, repeatable)")
	rootCmd.AddCommand(extractCmd)
}

// processor is the part of the pipeline used by extract and batch.
type processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

func extractFile(ctx context.Context, p processor, reader document.Reader, path, provider string, productTypes []string) (*pipeline.Result, error) {
	data, err := reader.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	res, err := p.Process(ctx, pipeline.Request{
		Filename:     document.RefName(path),
		Data:         data,
		Provider:     provider,
		ProductTypes: productTypes,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract %s", path)
	}
	zap.L().Info("document processed",
		zap.String("path", path),
		zap.String("extraction_id", res.ExtractionID),
		zap.String("status", string(res.Status)),
		zap.Int("items", len(res.Items)),
		zap.Int("pending_clarifications", len(res.PendingClarifications)),
	)
	return res, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}
