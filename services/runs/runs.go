// Package runs keeps the audit history of finished clone runs.
package runs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"guildcloner/models"
	"guildcloner/utils"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

type Repository interface {
	InsertRun(ctx context.Context, record *models.RunRecord) error
	GetRunByID(ctx context.Context, id string) (mo.Option[*models.RunRecord], error)
	ListRecentRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

type RunsService struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRunsService(repo Repository, logger zerolog.Logger) *RunsService {
	utils.AssertInvariant(repo != nil, "runs repository cannot be nil")
	return &RunsService{repo: repo, logger: logger.With().Str("component", "runs").Logger()}
}

// RecordOutcome stores the summary of a terminal run.
func (s *RunsService) RecordOutcome(ctx context.Context, outcome models.RunOutcome) error {
	utils.AssertInvariant(outcome.RunID != "", "run id cannot be empty")
	utils.AssertInvariant(outcome.State.IsTerminal(), "only terminal runs are recorded")

	s.logger.Info().Str("run_id", outcome.RunID).Str("state", string(outcome.State)).Msg("Starting to record run outcome")
	if err := s.repo.InsertRun(ctx, models.NewRunRecord(outcome)); err != nil {
		return fmt.Errorf("failed to record run %s: %w", outcome.RunID, err)
	}
	s.logger.Info().Str("run_id", outcome.RunID).Msg("Completed successfully - recorded run outcome")
	return nil
}

// OnRunFinished implements the engine's outcome observer.
func (s *RunsService) OnRunFinished(ctx context.Context, outcome models.RunOutcome) {
	if err := s.RecordOutcome(ctx, outcome); err != nil {
		s.logger.Error().Err(err).Str("run_id", outcome.RunID).Msg("Failed to record run outcome")
	}
}

func (s *RunsService) GetRun(ctx context.Context, id string) (mo.Option[*models.RunRecord], error) {
	run, err := s.repo.GetRunByID(ctx, id)
	if err != nil {
		return mo.None[*models.RunRecord](), fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRecent returns the latest runs, newest first. limit is clamped to [1, MaxListLimit].
func (s *RunsService) ListRecent(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	records, err := s.repo.ListRecentRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}
