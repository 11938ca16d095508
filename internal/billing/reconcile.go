package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// reconcileParallelism bounds the reconcile-all sweep.
const reconcileParallelism = 8

// ReconcileResult reports a paid-to-date reconciliation. Difference is
// current minus previous; zero means the cache already matched the ledger.
type ReconcileResult struct {
	ProjectID  uuid.UUID `json:"project_id"`
	Previous   int64     `json:"previous_cents"`
	Current    int64     `json:"current_cents"`
	Difference int64     `json:"difference_cents"`
}

// ReconcilePaidToDate recomputes a project's paid-to-date from the ledger's
// paid invoices (ground truth) and overwrites the cached value on drift. It
// reads invoices only, never creates or mutates them, so it is safe to run
// concurrently with payment operations. Running it twice with no payments in
// between is a no-op on the second run.
func (s *Service) ReconcilePaidToDate(ctx context.Context, projectID uuid.UUID) (*ReconcileResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	summary, err := s.ledger.SumPaidInvoices(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("sum paid invoices: %w", err)
	}

	res := &ReconcileResult{
		ProjectID:  projectID,
		Previous:   project.PaidToDate,
		Current:    summary.Total,
		Difference: summary.Total - project.PaidToDate,
	}
	if err := s.projects.SetPaidToDate(ctx, projectID, summary.Total, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("write paid-to-date: %w", err)
	}
	if res.Difference != 0 {
		s.log.Warn("paid-to-date drift corrected", "project_id", projectID, "previous", res.Previous, "current", res.Current)
	}
	return res, nil
}

// ReconcileAll sweeps every ongoing project with bounded parallelism and
// returns the results that showed drift. Individual project failures are
// logged and skipped so one bad record does not abort the sweep.
func (s *Service) ReconcileAll(ctx context.Context) ([]*ReconcileResult, error) {
	ids, err := s.projects.ListOngoingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ongoing projects: %w", err)
	}

	results := make([]*ReconcileResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.ReconcilePaidToDate(gctx, id)
			if err != nil {
				s.log.Error("reconcile failed", "project_id", id, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var drifted []*ReconcileResult
	for _, r := range results {
		if r != nil && r.Difference != 0 {
			drifted = append(drifted, r)
		}
	}
	return drifted, nil
}
