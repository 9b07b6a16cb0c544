package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/ledger"
)

// LedgerService periodically trims old ledger entries.
type LedgerService struct {
	ledger    *ledger.Ledger
	interval  time.Duration
	retention time.Duration
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(l *ledger.Ledger, interval time.Duration, retentionDays int) *LedgerService {
	return &LedgerService{
		ledger:    l,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Start begins the cleanup loop.
func (s *LedgerService) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *LedgerService) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Cleanup drops entries older than the retention period.
func (s *LedgerService) Cleanup() {
	deleted, err := s.ledger.Cleanup(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
