package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

const (
	DefaultPollTimeout = 3 * time.Second
	maxPollTimeout     = 30 * time.Second
	maxAuthHistory     = 50
)

// UserStore is the persistence surface for TelegramUser rows. A missing row
// is reported with ErrUserNotLinked.
type UserStore interface {
	FindByUserID(ctx context.Context, userID int64) (model.TelegramUser, error)
	GetOrCreate(ctx context.Context, userID int64) (model.TelegramUser, error)
	SaveIdentity(ctx context.Context, userID int64, identity model.TelegramIdentity) error
	SetQRLoginActive(ctx context.Context, userID int64, active bool) error
	ClearClientFlags(ctx context.Context, userID int64) error
	TouchActivity(ctx context.Context, userID int64) error
	SetAvatarURL(ctx context.Context, userID int64, url string) error
	Reset(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID int64) error
}

type AttemptStore interface {
	Create(ctx context.Context, telegramUserID int64, attemptType enums.AttemptType) (int64, error)
	Finish(ctx context.Context, attemptID int64, status enums.AttemptStatus, errorMessage string) error
	FinishLatestPending(ctx context.Context, telegramUserID int64, attemptType enums.AttemptType, status enums.AttemptStatus, errorMessage string) error
	ListByTelegramUser(ctx context.Context, telegramUserID int64, limit int) ([]model.AuthAttempt, error)
}

type Notifier interface {
	NotifyLogin(ctx context.Context, telegramID int64, firstName string) error
}

type QRRateLimiter interface {
	AllowQR(ctx context.Context, userID int64) (int64, bool, error)
}

type AvatarStore interface {
	Put(ctx context.Context, userID int64, photo []byte) (string, error)
}

// RateLimitedError reports that QR generation is throttled for the user.
type RateLimitedError struct {
	RetryAfterSec int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("qr generation rate limited: retry after %ds", e.RetryAfterSec)
}

type QRResult struct {
	Status      enums.AuthStatus
	Image       string
	URL         string
	SessionName string
}

type StatusResult struct {
	Status enums.AuthStatus
	User   *model.TelegramUser
	Error  string
}

type Config struct {
	PollTimeout time.Duration
}

// Service drives the authorization state machine against persistent state:
// the Manager owns live connections, the stores own rows, and every state
// transition lands in an AuthAttempt audit record.
type Service struct {
	log      *zap.Logger
	users    UserStore
	attempts AttemptStore
	manager  *Manager
	limiter  QRRateLimiter
	notifier Notifier
	avatars  AvatarStore

	pollTimeout time.Duration
}

func NewService(users UserStore, attempts AttemptStore, manager *Manager, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if pollTimeout > maxPollTimeout {
		pollTimeout = maxPollTimeout
	}

	return &Service{
		log:         log,
		users:       users,
		attempts:    attempts,
		manager:     manager,
		pollTimeout: pollTimeout,
	}
}

func (s *Service) AttachRateLimiter(limiter QRRateLimiter) { s.limiter = limiter }
func (s *Service) AttachNotifier(notifier Notifier)        { s.notifier = notifier }
func (s *Service) AttachAvatars(avatars AvatarStore)       { s.avatars = avatars }

// GenerateQR starts a login flow. An already authorized account is reported
// as such without creating an AuthAttempt, so the caller can redirect.
func (s *Service) GenerateQR(ctx context.Context, userID int64) (QRResult, error) {
	if userID <= 0 {
		return QRResult{}, fmt.Errorf("invalid user id")
	}

	row, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return QRResult{}, fmt.Errorf("get or create telegram user: %w", err)
	}
	if row.IsAuthorized {
		return QRResult{Status: enums.AuthStatusAlreadyAuthorized, SessionName: row.SessionName}, nil
	}

	if s.limiter != nil {
		retryAfter, ok, err := s.limiter.AllowQR(ctx, userID)
		if err != nil {
			s.log.Warn("qr rate limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
		} else if !ok {
			return QRResult{}, &RateLimitedError{RetryAfterSec: retryAfter}
		}
	}

	client, err := s.manager.Acquire(ctx, userID, row.ID)
	if err != nil {
		return QRResult{}, err
	}

	attemptID, err := s.attempts.Create(ctx, row.ID, enums.AttemptTypeQR)
	if err != nil {
		return QRResult{}, fmt.Errorf("record auth attempt: %w", err)
	}

	code, err := client.GenerateQR(ctx)
	if err != nil {
		s.finishAttempt(ctx, attemptID, enums.AttemptStatusFailed, err.Error())
		s.manager.Evict(ctx, userID)
		return QRResult{}, err
	}

	if err := s.users.SetQRLoginActive(ctx, userID, true); err != nil {
		s.log.Warn("mark qr login active", zap.Int64("user_id", userID), zap.Error(err))
	}

	return QRResult{
		Status:      enums.AuthStatusWaiting,
		Image:       QRDataURL(code.PNG),
		URL:         code.URL,
		SessionName: row.SessionName,
	}, nil
}

// CheckStatus performs one bounded wait on the login confirmation. Repeated
// calls after a persisted success short-circuit without touching the
// transport. A read-only check never creates a TelegramUser row.
func (s *Service) CheckStatus(ctx context.Context, userID int64) (StatusResult, error) {
	row, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return StatusResult{}, err
	}
	if row.IsAuthorized {
		return StatusResult{Status: enums.AuthStatusSuccess, User: &row}, nil
	}

	client, ok := s.manager.Lookup(userID)
	if !ok {
		return StatusResult{}, ErrNoActiveLogin
	}

	outcome, err := client.WaitForAuth(ctx, s.pollTimeout)
	if err != nil {
		s.finishLatestPending(ctx, row.ID, enums.AttemptTypeQR, enums.AttemptStatusFailed, err.Error())
		return StatusResult{}, err
	}

	switch outcome.Status {
	case enums.AuthStatusSuccess:
		updated, err := s.completeAuthorization(ctx, userID, row.ID, outcome)
		if err != nil {
			return StatusResult{}, err
		}
		s.finishLatestPending(ctx, row.ID, enums.AttemptTypeQR, enums.AttemptStatusSuccess, "")
		return StatusResult{Status: enums.AuthStatusSuccess, User: updated}, nil
	case enums.AuthStatusTwoFactorRequired:
		s.finishLatestPending(ctx, row.ID, enums.AttemptTypeQR, enums.AttemptStatusFailed, "second factor required")
		return StatusResult{Status: enums.AuthStatusTwoFactorRequired}, nil
	case enums.AuthStatusTimeout:
		s.finishLatestPending(ctx, row.ID, enums.AttemptTypeQR, enums.AttemptStatusTimeout, "qr code expired")
		if err := s.users.SetQRLoginActive(ctx, userID, false); err != nil {
			s.log.Warn("clear qr login flag", zap.Int64("user_id", userID), zap.Error(err))
		}
		return StatusResult{Status: enums.AuthStatusTimeout, Error: outcome.ErrorMessage}, nil
	default:
		return StatusResult{Status: enums.AuthStatusWaiting}, nil
	}
}

// SubmitPassword completes a flow that stopped at the second factor. A wrong
// password never touches is_authorized and always leaves a failed attempt.
func (s *Service) SubmitPassword(ctx context.Context, userID int64, password string) (StatusResult, error) {
	if password == "" {
		return StatusResult{}, fmt.Errorf("password is required")
	}

	row, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return StatusResult{}, err
	}

	client, ok := s.manager.Lookup(userID)
	if !ok {
		return StatusResult{}, ErrConnectionLost
	}

	attemptID, err := s.attempts.Create(ctx, row.ID, enums.AttemptTypePassword)
	if err != nil {
		return StatusResult{}, fmt.Errorf("record auth attempt: %w", err)
	}

	outcome, err := client.SubmitPassword(ctx, password)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			s.finishAttempt(ctx, attemptID, enums.AttemptStatusFailed, "invalid password")
			return StatusResult{}, err
		}
		s.finishAttempt(ctx, attemptID, enums.AttemptStatusFailed, err.Error())
		return StatusResult{}, err
	}

	updated, err := s.completeAuthorization(ctx, userID, row.ID, outcome)
	if err != nil {
		s.finishAttempt(ctx, attemptID, enums.AttemptStatusFailed, err.Error())
		return StatusResult{}, err
	}
	s.finishAttempt(ctx, attemptID, enums.AttemptStatusSuccess, "")

	return StatusResult{Status: enums.AuthStatusSuccess, User: updated}, nil
}

// RecreateQR abandons the current flow, tears the client down and starts a
// fresh one. Used when the QR challenge has expired.
func (s *Service) RecreateQR(ctx context.Context, userID int64) (QRResult, error) {
	if row, err := s.users.FindByUserID(ctx, userID); err == nil {
		s.finishLatestPending(ctx, row.ID, enums.AttemptTypeQR, enums.AttemptStatusTimeout, "qr regenerated")
	}
	s.manager.Evict(ctx, userID)
	return s.GenerateQR(ctx, userID)
}

func (s *Service) Chats(ctx context.Context, userID int64) ([]model.Chat, error) {
	row, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !row.IsAuthorized {
		return nil, ErrNotAuthorized
	}

	client, err := s.manager.Acquire(ctx, userID, row.ID)
	if err != nil {
		return nil, err
	}

	chats, err := client.Chats(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.users.TouchActivity(ctx, userID); err != nil {
		s.log.Debug("touch activity", zap.Int64("user_id", userID), zap.Error(err))
	}

	return chats, nil
}

func (s *Service) Messages(ctx context.Context, userID, chatID int64) ([]model.Message, string, error) {
	row, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !row.IsAuthorized {
		return nil, "", ErrNotAuthorized
	}

	client, err := s.manager.Acquire(ctx, userID, row.ID)
	if err != nil {
		return nil, "", err
	}

	messages, title, err := client.Messages(ctx, chatID)
	if err != nil {
		return nil, "", err
	}

	if err := s.users.TouchActivity(ctx, userID); err != nil {
		s.log.Debug("touch activity", zap.Int64("user_id", userID), zap.Error(err))
	}

	return messages, title, nil
}

// Reset drops the live client and wipes the stored credential. Idempotent:
// resetting an account that was never linked is a no-op success.
func (s *Service) Reset(ctx context.Context, userID int64) error {
	s.manager.Evict(ctx, userID)

	if err := s.users.Reset(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotLinked) {
			return nil
		}
		return fmt.Errorf("reset telegram session: %w", err)
	}

	return nil
}

// Unlink removes the link entirely: live client, stored credential and the
// TelegramUser row itself. Idempotent like Reset.
func (s *Service) Unlink(ctx context.Context, userID int64) error {
	s.manager.Evict(ctx, userID)

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotLinked) {
			return nil
		}
		return fmt.Errorf("unlink telegram account: %w", err)
	}

	return nil
}

// AuthHistory lists the user's most recent authorization attempts, newest
// first.
func (s *Service) AuthHistory(ctx context.Context, userID int64, limit int) ([]model.AuthAttempt, error) {
	if limit <= 0 || limit > maxAuthHistory {
		limit = maxAuthHistory
	}

	row, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attempts.ListByTelegramUser(ctx, row.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list auth attempts: %w", err)
	}
	return attempts, nil
}

// Disconnect releases the live connection without forgetting the credential.
// Idempotent.
func (s *Service) Disconnect(ctx context.Context, userID int64) error {
	s.manager.Evict(ctx, userID)

	if err := s.users.ClearClientFlags(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotLinked) {
			return nil
		}
		return fmt.Errorf("clear client flags: %w", err)
	}

	return nil
}

// completeAuthorization persists the identity (one write, so is_authorized
// can never be observed without it) and fires the best-effort side effects.
func (s *Service) completeAuthorization(ctx context.Context, userID, telegramUserPK int64, outcome AuthOutcome) (*model.TelegramUser, error) {
	if outcome.Identity == nil {
		return nil, fmt.Errorf("authorization outcome has no identity")
	}

	if err := s.users.SaveIdentity(ctx, userID, *outcome.Identity); err != nil {
		return nil, fmt.Errorf("persist telegram identity: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyLogin(ctx, outcome.Identity.TelegramID, outcome.Identity.FirstName); err != nil {
			s.log.Debug("login notification failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	if s.avatars != nil && len(outcome.PhotoPNG) > 0 {
		if url, err := s.avatars.Put(ctx, userID, outcome.PhotoPNG); err != nil {
			s.log.Debug("avatar upload failed", zap.Int64("user_id", userID), zap.Error(err))
		} else if err := s.users.SetAvatarURL(ctx, userID, url); err != nil {
			s.log.Debug("save avatar url failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	row, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.log.Info("telegram account authorized",
		zap.Int64("user_id", userID),
		zap.Int64("telegram_id", outcome.Identity.TelegramID),
	)
	return &row, nil
}

func (s *Service) finishAttempt(ctx context.Context, attemptID int64, status enums.AttemptStatus, msg string) {
	if err := s.attempts.Finish(ctx, attemptID, status, msg); err != nil {
		s.log.Warn("finish auth attempt", zap.Int64("attempt_id", attemptID), zap.Error(err))
	}
}

func (s *Service) finishLatestPending(ctx context.Context, telegramUserPK int64, attemptType enums.AttemptType, status enums.AttemptStatus, msg string) {
	if err := s.attempts.FinishLatestPending(ctx, telegramUserPK, attemptType, status, msg); err != nil {
		s.log.Debug("finish pending auth attempt", zap.Int64("telegram_user_id", telegramUserPK), zap.Error(err))
	}
}
