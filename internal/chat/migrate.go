package chat

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"cyris/internal/metrics"
	"cyris/internal/models"
	"cyris/internal/utils"
)

// Report summarises one migration run
type Report struct {
	Migrated int
	Skipped  int
	Failed   int

	// Err aggregates the per-chat failures, nil when none failed
	Err error
}

// Migrator moves guest history into an account store
type Migrator struct {
	metrics metrics.Metrics
	logger  *utils.Logger
}

// NewMigrator creates a migrator. m may be nil.
func NewMigrator(m metrics.Metrics) *Migrator {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Migrator{
		metrics: m,
		logger:  utils.NewLogger("migrator"),
	}
}

// Migrate imports every chat into dst. Chats whose id already exists are
// skipped, so running it again migrates nothing new. A failing chat never
// stops the batch.
func (m *Migrator) Migrate(ctx context.Context, dst Importer, chats []*models.Chat) Report {
	var report Report
	var errs *multierror.Error

	for _, c := range chats {
		if c == nil {
			report.Failed++
			errs = multierror.Append(errs, fmt.Errorf("nil chat"))
			continue
		}

		if err := c.Validate(); err != nil {
			report.Failed++
			errs = multierror.Append(errs, fmt.Errorf("chat %q: %w", c.ID, err))
			continue
		}

		inserted, err := dst.Import(ctx, c)
		switch {
		case err != nil:
			report.Failed++
			errs = multierror.Append(errs, fmt.Errorf("chat %q: %w", c.ID, err))
			m.logger.Warn("Failed to migrate chat", "chat_id", c.ID, "error", err)
		case inserted:
			report.Migrated++
		default:
			report.Skipped++
		}
	}

	report.Err = errs.ErrorOrNil()

	m.metrics.AddMigratedChats("migrated", report.Migrated)
	m.metrics.AddMigratedChats("skipped", report.Skipped)
	m.metrics.AddMigratedChats("failed", report.Failed)

	m.logger.Info("Migration finished",
		"migrated", report.Migrated, "skipped", report.Skipped, "failed", report.Failed)
	return report
}

// MigrateGuest migrates a guest's stored history. The guest store is cleared
// only when no chat failed; otherwise it is kept so the user can retry.
func (m *Migrator) MigrateGuest(ctx context.Context, dst Importer, guest GuestSource) (Report, error) {
	chats, err := guest.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read guest chats: %w", err)
	}
	if len(chats) == 0 {
		return Report{}, ErrNoChats
	}

	report := m.Migrate(ctx, dst, chats)
	if report.Failed > 0 {
		m.logger.Warn("Keeping guest chats after partial migration", "failed", report.Failed)
		return report, nil
	}

	if err := guest.Clear(ctx); err != nil {
		return report, fmt.Errorf("failed to clear guest chats: %w", err)
	}
	return report, nil
}
