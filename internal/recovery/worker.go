// Package recovery re-drives orders left inconsistent by crashes or slow
// gateway calls. Each run claims a bounded batch under skip-locked row
// locks in a short transaction, then processes every claimed item outside
// that transaction. Per-item failures are logged and never abort the batch.
package recovery

import (
	"context"
	"log/slog"
)

type Report struct {
	Claimed   int
	Processed int
	Failed    int
}

type Job interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// processClaimed runs fn for each id, isolating failures.
func processClaimed(ctx context.Context, logger *slog.Logger, job string, ids []string, fn func(context.Context, string) error) Report {
	report := Report{Claimed: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := fn(ctx, id); err != nil {
			report.Failed++
			logger.Error("recovery item failed", "job", job, "id", id, "err", err)
			continue
		}
		report.Processed++
	}
	return report
}
