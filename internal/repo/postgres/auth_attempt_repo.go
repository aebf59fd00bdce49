package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

var ErrAttemptNotFound = errors.New("auth attempt not found")

type AuthAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewAuthAttemptRepo(pool *pgxpool.Pool) *AuthAttemptRepo {
	return &AuthAttemptRepo{pool: pool}
}

func (r *AuthAttemptRepo) Create(ctx context.Context, telegramUserID int64, attemptType enums.AttemptType) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if telegramUserID <= 0 {
		return 0, fmt.Errorf("invalid telegram user id")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO auth_attempts (telegram_user_id, attempt_type, status, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING id
`, telegramUserID, string(attemptType), string(enums.AttemptStatusPending)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create auth attempt: %w", err)
	}

	return id, nil
}

// Finish moves a pending attempt to a terminal status. Attempts already in a
// terminal state are left untouched, so the pending -> terminal transition
// happens at most once per row.
func (r *AuthAttemptRepo) Finish(ctx context.Context, attemptID int64, status enums.AttemptStatus, errorMessage string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if attemptID <= 0 {
		return fmt.Errorf("invalid attempt id")
	}
	if status == enums.AttemptStatusPending {
		return fmt.Errorf("cannot finish attempt with pending status")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE auth_attempts
SET status = $2, error_message = NULLIF($3, ''), finished_at = NOW()
WHERE id = $1 AND status = $4
`, attemptID, string(status), errorMessage, string(enums.AttemptStatusPending))
	if err != nil {
		return fmt.Errorf("finish auth attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}

	return nil
}

// FinishLatestPending terminates the most recent pending attempt of the given
// type for the telegram user. Used when the attempt id was not carried across
// HTTP requests.
func (r *AuthAttemptRepo) FinishLatestPending(ctx context.Context, telegramUserID int64, attemptType enums.AttemptType, status enums.AttemptStatus, errorMessage string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if telegramUserID <= 0 {
		return fmt.Errorf("invalid telegram user id")
	}
	if status == enums.AttemptStatusPending {
		return fmt.Errorf("cannot finish attempt with pending status")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE auth_attempts
SET status = $3, error_message = NULLIF($4, ''), finished_at = NOW()
WHERE id = (
	SELECT id FROM auth_attempts
	WHERE telegram_user_id = $1 AND attempt_type = $2 AND status = $5
	ORDER BY created_at DESC
	LIMIT 1
)
`, telegramUserID, string(attemptType), string(status), errorMessage, string(enums.AttemptStatusPending))
	if err != nil {
		return fmt.Errorf("finish latest pending attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}

	return nil
}

func (r *AuthAttemptRepo) ListByTelegramUser(ctx context.Context, telegramUserID int64, limit int) ([]model.AuthAttempt, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if telegramUserID <= 0 {
		return nil, fmt.Errorf("invalid telegram user id")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, telegram_user_id, attempt_type, status, COALESCE(error_message, ''), created_at, finished_at
FROM auth_attempts
WHERE telegram_user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, telegramUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list auth attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.AuthAttempt
	for rows.Next() {
		var a model.AuthAttempt
		var attemptType, status string
		if err := rows.Scan(&a.ID, &a.TelegramUserID, &attemptType, &status, &a.ErrorMessage, &a.CreatedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan auth attempt: %w", err)
		}
		a.AttemptType = enums.AttemptType(attemptType)
		a.Status = enums.AttemptStatus(status)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth attempts: %w", err)
	}

	return attempts, nil
}

// TimeoutStalePending marks pending attempts older than the cutoff as timed
// out. Called by the cleanup job for flows that were simply abandoned.
func (r *AuthAttemptRepo) TimeoutStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE auth_attempts
SET status = $1, error_message = 'attempt abandoned', finished_at = NOW()
WHERE status = $2 AND created_at < $3
`, string(enums.AttemptStatusTimeout), string(enums.AttemptStatusPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("timeout stale attempts: %w", err)
	}

	return tag.RowsAffected(), nil
}

// PurgeFinishedBefore deletes terminal attempts older than the cutoff. The
// audit trail is only interesting for a bounded window.
func (r *AuthAttemptRepo) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM auth_attempts
WHERE status <> $1 AND created_at < $2
`, string(enums.AttemptStatusPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge finished attempts: %w", err)
	}

	return tag.RowsAffected(), nil
}
