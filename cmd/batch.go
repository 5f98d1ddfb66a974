package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/model"
)

var (
	batchLimit       int
	batchConcurrency int
	batchProvider    string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every supported document in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths, err := collectDocuments(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentDocuments
		}

		summary, err := processBatch(ctx, paths, batchLimit, concurrency, func(ctx context.Context, path string) (model.ExtractionStatus, error) {
			res, err := extractFile(ctx, env.Pipeline, document.FileReader{}, path, batchProvider, nil)
			if err != nil {
				return "", err
			}
			return res.Status, nil
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of documents to process")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "documents processed at once (default from config)")
	batchCmd.Flags().StringVar(&batchProvider, "provider", "", "preferred AI provider")
	rootCmd.AddCommand(batchCmd)
}

// collectDocuments lists the supported documents directly under dir in name
// order. Other files are skipped.
func collectDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !document.DetectType(e.Name()).Supported() {
			zap.L().Debug("batch: skipping unsupported file", zap.String("name", e.Name()))
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// batchSummary counts outcomes by extraction status.
type batchSummary struct {
	Processed int                            `json:"processed"`
	Errors    int                            `json:"errors"`
	ByStatus  map[model.ExtractionStatus]int `json:"byStatus"`
}

// extractFunc processes one document path.
type extractFunc func(ctx context.Context, path string) (model.ExtractionStatus, error)

// processBatch applies limit, then processes paths concurrently. A failing
// document is counted and logged and does not stop the batch.
func processBatch(ctx context.Context, paths []string, limit, concurrency int, fn extractFunc) (*batchSummary, error) {
	summary := &batchSummary{ByStatus: make(map[model.ExtractionStatus]int)}
	if len(paths) == 0 {
		zap.L().Info("no documents found")
		return summary, nil
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			status, err := fn(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if err != nil {
				summary.Errors++
				zap.L().Error("document failed", zap.String("path", path), zap.Error(err))
				return nil
			}
			summary.ByStatus[status]++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("errors", summary.Errors),
		zap.String("by_status", fmt.Sprint(summary.ByStatus)),
	)
	return summary, nil
}
