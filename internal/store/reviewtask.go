package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/apierr"
)

// ReviewStatus is the lifecycle of a Training queue entry.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewConfirmed ReviewStatus = "confirmed"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewCorrected ReviewStatus = "corrected"
)

// ReviewTask is a low-confidence LLM-proposed object link queued for
// human review, per spec.md §4.3's Training queue. Grounded on
// decision-trace's DecisionTrace (confidence/reasoning/risk_level) fields.
type ReviewTask struct {
	ID            string
	BucketID      string
	EventID       int64
	ObjectType    string
	Identifier    string
	IdentifierKey string
	Confidence    float64
	Reasoning     string
	RiskLevel     string
	Status        ReviewStatus
	CreatedAt     string
	UpdatedAt     string
}

// EnqueueReviewTask inserts a new pending review task.
func (s *Store) EnqueueReviewTask(ctx context.Context, t ReviewTask) (*ReviewTask, error) {
	var result *ReviewTask
	err := s.withWriteLock(func() error {
		if t.ID == "" {
			t.ID = NewUUID().String()
		}
		now := nowRFC3339()
		t.CreatedAt, t.UpdatedAt = now, now
		if t.Status == "" {
			t.Status = ReviewPending
		}
		_, err := dbopen.Exec(ctx, s.db, `
			INSERT INTO review_tasks
				(id, bucket_id, event_id, object_type, identifier, identifier_key,
				 confidence, reasoning, risk_level, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.BucketID, t.EventID, t.ObjectType, t.Identifier, t.IdentifierKey,
			t.Confidence, t.Reasoning, t.RiskLevel, string(t.Status), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return err
		}
		result = &t
		return nil
	})
	return result, err
}

// GetReviewTask fetches a task by id.
func (s *Store) GetReviewTask(ctx context.Context, id string) (*ReviewTask, error) {
	row := s.db.QueryRowContext(ctx, reviewTaskSelectColumns+`FROM review_tasks WHERE id = ?`, id)
	t, err := scanReviewTask(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("review task %s not found", id)
	}
	return t, err
}

const reviewTaskSelectColumns = `
	SELECT id, bucket_id, event_id, object_type, identifier, identifier_key,
	       confidence, reasoning, risk_level, status, created_at, updated_at
`

// ListPendingReviewTasks backs GET /training/pending, oldest first so the
// queue behaves FIFO for human reviewers.
func (s *Store) ListPendingReviewTasks(ctx context.Context, limit int) ([]ReviewTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, reviewTaskSelectColumns+`
		FROM review_tasks WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list pending review tasks: %w", err)
	}
	defer rows.Close()

	var out []ReviewTask
	for rows.Next() {
		t, err := scanReviewTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ConfirmReviewTask marks a task confirmed: the proposed link was correct.
// Confidence/counter bookkeeping on the originating rule is the
// extractor's job (internal/extract), driven off the returned task.
func (s *Store) ConfirmReviewTask(ctx context.Context, id string) (*ReviewTask, error) {
	return s.transitionReviewTask(ctx, id, ReviewConfirmed)
}

// RejectReviewTask marks a task rejected: the proposed link was wrong.
func (s *Store) RejectReviewTask(ctx context.Context, id string) (*ReviewTask, error) {
	return s.transitionReviewTask(ctx, id, ReviewRejected)
}

// CorrectReviewTask marks a task corrected with the reviewer-supplied
// identifier, feeding the rule generalization path (spec.md §4.2).
func (s *Store) CorrectReviewTask(ctx context.Context, id, correctedIdentifier string) (*ReviewTask, error) {
	var result *ReviewTask
	err := s.withWriteLock(func() error {
		now := nowRFC3339()
		res, err := dbopen.Exec(ctx, s.db, `
			UPDATE review_tasks SET identifier = ?, status = ?, updated_at = ? WHERE id = ? AND status = 'pending'
		`, correctedIdentifier, string(ReviewCorrected), now, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.PreconditionFailedf("review task %s is not pending", id)
		}
		t, err := s.GetReviewTask(ctx, id)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

func (s *Store) transitionReviewTask(ctx context.Context, id string, to ReviewStatus) (*ReviewTask, error) {
	var result *ReviewTask
	err := s.withWriteLock(func() error {
		res, err := dbopen.Exec(ctx, s.db, `
			UPDATE review_tasks SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'
		`, string(to), nowRFC3339(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.PreconditionFailedf("review task %s is not pending", id)
		}
		t, err := s.GetReviewTask(ctx, id)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

func scanReviewTask(row scanner) (*ReviewTask, error) {
	var t ReviewTask
	var status string
	var reasoning, riskLevel sql.NullString
	if err := row.Scan(
		&t.ID, &t.BucketID, &t.EventID, &t.ObjectType, &t.Identifier, &t.IdentifierKey,
		&t.Confidence, &reasoning, &riskLevel, &status, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Reasoning = reasoning.String
	t.RiskLevel = riskLevel.String
	t.Status = ReviewStatus(status)
	return &t, nil
}
