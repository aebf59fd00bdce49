package model

import "time"

// TelegramUser is the single persisted row describing one platform user's
// linked Telegram account. The session string is an opaque MTProto credential
// blob owned exclusively by this row; it is overwritten wholesale on save and
// cleared on reset.
type TelegramUser struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	TelegramID        int64      `json:"telegram_id"`
	Username          string     `json:"username"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Phone             string     `json:"phone"`
	SessionName       string     `json:"session_name"`
	IsAuthorized      bool       `json:"is_authorized"`
	AuthorizedAt      *time.Time `json:"authorized_at"`
	ClientInitialized bool       `json:"client_initialized"`
	QRLoginActive     bool       `json:"qr_login_active"`
	AvatarURL         string     `json:"avatar_url"`
	LastActivity      *time.Time `json:"last_activity"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TelegramIdentity is the subset of account fields delivered by a successful
// authorization, persisted onto the TelegramUser row in one write.
type TelegramIdentity struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
}
