package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
	tgsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/telegram"
)

var ErrTelegramUserNotFound = tgsvc.ErrUserNotLinked

type TelegramUserRepo struct {
	pool *pgxpool.Pool
}

func NewTelegramUserRepo(pool *pgxpool.Pool) *TelegramUserRepo {
	return &TelegramUserRepo{pool: pool}
}

const telegramUserColumns = `
id, user_id, telegram_id, username, first_name, last_name, phone,
session_name, is_authorized, authorized_at, client_initialized,
qr_login_active, avatar_url, last_activity, created_at, updated_at`

func (r *TelegramUserRepo) FindByUserID(ctx context.Context, userID int64) (model.TelegramUser, error) {
	if r.pool == nil {
		return model.TelegramUser{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.TelegramUser{}, fmt.Errorf("invalid user id")
	}

	row := r.pool.QueryRow(ctx, `
SELECT`+telegramUserColumns+`
FROM telegram_users
WHERE user_id = $1
`, userID)

	user, err := scanTelegramUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TelegramUser{}, ErrTelegramUserNotFound
		}
		return model.TelegramUser{}, fmt.Errorf("find telegram user: %w", err)
	}

	return user, nil
}

// GetOrCreate returns the row for the platform user, creating it with a fresh
// unique session_name when absent.
func (r *TelegramUserRepo) GetOrCreate(ctx context.Context, userID int64) (model.TelegramUser, error) {
	if r.pool == nil {
		return model.TelegramUser{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.TelegramUser{}, fmt.Errorf("invalid user id")
	}

	sessionName := "tg_" + uuid.NewString()
	row := r.pool.QueryRow(ctx, `
INSERT INTO telegram_users (user_id, session_name, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	updated_at = NOW()
RETURNING`+telegramUserColumns+`
`, userID, sessionName)

	user, err := scanTelegramUser(row)
	if err != nil {
		return model.TelegramUser{}, fmt.Errorf("get or create telegram user: %w", err)
	}

	return user, nil
}

// SaveIdentity persists a successful authorization: identity fields,
// is_authorized and the lifecycle flags change in a single statement so a
// reader can never observe is_authorized=true with an empty telegram_id.
func (r *TelegramUserRepo) SaveIdentity(ctx context.Context, userID int64, identity model.TelegramIdentity) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 || identity.TelegramID <= 0 {
		return fmt.Errorf("invalid identity payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET telegram_id = $2,
	username = $3,
	first_name = $4,
	last_name = $5,
	phone = $6,
	is_authorized = TRUE,
	authorized_at = NOW(),
	qr_login_active = FALSE,
	last_activity = NOW(),
	updated_at = NOW()
WHERE user_id = $1
`, userID, identity.TelegramID, identity.Username, identity.FirstName, identity.LastName, identity.Phone)
	if err != nil {
		return fmt.Errorf("save telegram identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTelegramUserNotFound
	}

	return nil
}

func (r *TelegramUserRepo) SetQRLoginActive(ctx context.Context, userID int64, active bool) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET qr_login_active = $2, client_initialized = TRUE, updated_at = NOW()
WHERE user_id = $1
`, userID, active); err != nil {
		return fmt.Errorf("set qr_login_active: %w", err)
	}

	return nil
}

func (r *TelegramUserRepo) ClearClientFlags(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET client_initialized = FALSE, qr_login_active = FALSE, updated_at = NOW()
WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("clear client flags: %w", err)
	}

	return nil
}

func (r *TelegramUserRepo) TouchActivity(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET last_activity = NOW(), updated_at = NOW()
WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("touch telegram user activity: %w", err)
	}

	return nil
}

func (r *TelegramUserRepo) SetAvatarURL(ctx context.Context, userID int64, url string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(url) == "" {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET avatar_url = $2, updated_at = NOW()
WHERE user_id = $1
`, userID, url); err != nil {
		return fmt.Errorf("set telegram avatar url: %w", err)
	}

	return nil
}

// Reset clears the stored session blob and deauthorizes the account in one
// statement. Idempotent.
func (r *TelegramUserRepo) Reset(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET session_data = '',
	is_authorized = FALSE,
	client_initialized = FALSE,
	qr_login_active = FALSE,
	updated_at = NOW()
WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("reset telegram session: %w", err)
	}

	return nil
}

// Delete removes the row. An authorized row is deauthorized first so the
// not-deleted-while-authorized invariant holds even on the admin path.
func (r *TelegramUserRepo) Delete(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	return WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
UPDATE telegram_users
SET session_data = '',
	is_authorized = FALSE,
	client_initialized = FALSE,
	qr_login_active = FALSE,
	updated_at = NOW()
WHERE user_id = $1
`, userID); err != nil {
			return fmt.Errorf("reset telegram session: %w", err)
		}
		if _, err := tx.Exec(ctx, `
DELETE FROM telegram_users
WHERE user_id = $1
`, userID); err != nil {
			return fmt.Errorf("delete telegram user: %w", err)
		}
		return nil
	})
}

func (r *TelegramUserRepo) LoadSession(ctx context.Context, userID int64) (string, error) {
	if r.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var data string
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(session_data, '')
FROM telegram_users
WHERE user_id = $1
`, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTelegramUserNotFound
		}
		return "", fmt.Errorf("load telegram session: %w", err)
	}

	return data, nil
}

func (r *TelegramUserRepo) SaveSession(ctx context.Context, userID int64, data string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET session_data = $2, updated_at = NOW()
WHERE user_id = $1
`, userID, data)
	if err != nil {
		return fmt.Errorf("save telegram session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTelegramUserNotFound
	}

	return nil
}

// ClearStaleQRFlags drops qr_login_active on rows whose last update is older
// than the cutoff and that never completed authorization.
func (r *TelegramUserRepo) ClearStaleQRFlags(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE telegram_users
SET qr_login_active = FALSE, client_initialized = FALSE, updated_at = NOW()
WHERE qr_login_active = TRUE
  AND is_authorized = FALSE
  AND updated_at < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear stale qr flags: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanTelegramUser(row pgx.Row) (model.TelegramUser, error) {
	var u model.TelegramUser
	err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.TelegramID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.SessionName,
		&u.IsAuthorized,
		&u.AuthorizedAt,
		&u.ClientInitialized,
		&u.QRLoginActive,
		&u.AvatarURL,
		&u.LastActivity,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
