package model

import (
	"time"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
)

// AuthAttempt is an append-only audit record of one authorization effort.
// Status transitions pending -> {success, failed, timeout} exactly once.
type AuthAttempt struct {
	ID             int64               `json:"id"`
	TelegramUserID int64               `json:"telegram_user_id"`
	AttemptType    enums.AttemptType   `json:"attempt_type"`
	Status         enums.AttemptStatus `json:"status"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}
