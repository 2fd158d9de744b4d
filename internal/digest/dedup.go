package digest

import (
	"context"
	"fmt"
	"log/slog"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

// Deduplicator drops papers that already appeared in any earlier digest.
// Membership is permanent and keyed by paper identity, so the same paper
// surfaces at most once no matter how often later fetch windows return it
// or how its score drifts.
type Deduplicator struct {
	log    ports.DigestLog
	logger *slog.Logger
}

func NewDeduplicator(log ports.DigestLog, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{log: log, logger: logger}
}

// Filter returns the papers with no digest membership on record, preserving
// input order. The membership check is a single batch query.
func (d *Deduplicator) Filter(ctx context.Context, papers []domain.RankedPaper) ([]domain.RankedPaper, error) {
	if len(papers) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.Paper.ID)
	}

	members, err := d.log.DigestMembers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load digest members: %w", err)
	}

	fresh := make([]domain.RankedPaper, 0, len(papers))
	for _, p := range papers {
		if members[p.Paper.ID] {
			continue
		}
		fresh = append(fresh, p)
	}

	if d.logger != nil && len(fresh) < len(papers) {
		d.logger.Debug("suppressed previously digested papers",
			"candidates", len(papers),
			"suppressed", len(papers)-len(fresh))
	}
	return fresh, nil
}
