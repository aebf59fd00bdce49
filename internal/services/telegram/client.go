package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

var (
	ErrUserNotLinked   = errors.New("telegram user not found")
	ErrNotAuthorized   = errors.New("telegram account is not authorized")
	ErrNoActiveLogin   = errors.New("no active qr login")
	ErrInvalidPassword = errors.New("invalid 2fa password")
	ErrConnectionLost  = errors.New("telegram connection lost")
	ErrChatNotFound    = errors.New("chat not found")
)

// FloodWaitError is returned when Telegram asks the caller to back off.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram flood wait: retry after %s", e.RetryAfter)
}

// QRCode is one exported login challenge: the raw tg://login URL plus its PNG
// rendering and expiry.
type QRCode struct {
	URL       string
	PNG       []byte
	ExpiresAt time.Time
}

// AuthOutcome is the normalized result of one wait/verify step. Transport
// errors never cross this boundary raw: they are folded into Status plus
// ErrorMessage, or into the typed errors above.
type AuthOutcome struct {
	Status       enums.AuthStatus
	Identity     *model.TelegramIdentity
	PhotoPNG     []byte
	ErrorMessage string
}

// Client drives one Telegram account through the QR authorization state
// machine and, once authorized, reads dialogs. Implementations: the
// gotd-backed mtprotoClient and the simulated demoClient.
type Client interface {
	GenerateQR(ctx context.Context) (QRCode, error)
	WaitForAuth(ctx context.Context, timeout time.Duration) (AuthOutcome, error)
	SubmitPassword(ctx context.Context, password string) (AuthOutcome, error)
	Chats(ctx context.Context) ([]model.Chat, error)
	Messages(ctx context.Context, chatID int64) ([]model.Message, string, error)
	Close(ctx context.Context) error
}
