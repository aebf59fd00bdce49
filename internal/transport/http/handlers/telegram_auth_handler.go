package handlers

import (
	"errors"
	"net/http"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/pkg/validate"
	authsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/auth"
	tgsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/telegram"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/transport/http/dto"
	httperrors "github.com/agolubenk/hr-hf-helper-sub001/internal/transport/http/errors"
)

type TelegramAuthHandler struct {
	service *tgsvc.Service
}

func NewTelegramAuthHandler(service *tgsvc.Service) *TelegramAuthHandler {
	return &TelegramAuthHandler{service: service}
}

// GenerateQR starts a new login flow, or reports already_authorized so the
// frontend can skip straight to the chat view.
func (h *TelegramAuthHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	res, err := h.service.GenerateQR(r.Context(), identity.UserID)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.TelegramQRResponse{
		Status:      string(res.Status),
		QRCode:      res.Image,
		QRURL:       res.URL,
		SessionName: res.SessionName,
	})
}

// RecreateQR drops the current flow and issues a fresh challenge.
func (h *TelegramAuthHandler) RecreateQR(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	res, err := h.service.RecreateQR(r.Context(), identity.UserID)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.TelegramQRResponse{
		Status:      string(res.Status),
		QRCode:      res.Image,
		QRURL:       res.URL,
		SessionName: res.SessionName,
	})
}

// Status performs one bounded wait on the pending login. The frontend polls
// this endpoint until the status leaves waiting.
func (h *TelegramAuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	res, err := h.service.CheckStatus(r.Context(), identity.UserID)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, statusResponse(res))
}

// Verify submits the 2FA password for a flow stopped at the second factor.
func (h *TelegramAuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req dto.TelegramVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validate.Required(req.Password) {
		writeBadRequest(w, "VALIDATION_ERROR", "password is required")
		return
	}

	res, err := h.service.SubmitPassword(r.Context(), identity.UserID, req.Password)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, statusResponse(res))
}

// Reset wipes the stored session. Always succeeds for an authenticated user.
func (h *TelegramAuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.service.Reset(r.Context(), identity.UserID); err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.TelegramResetResponse{OK: true})
}

// Disconnect releases the live connection but keeps the stored session, so
// the next chat request reconnects without a new QR scan.
func (h *TelegramAuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), identity.UserID); err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.TelegramResetResponse{OK: true})
}

// Unlink removes the Telegram link entirely, row included.
func (h *TelegramAuthHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	if err := h.service.Unlink(r.Context(), identity.UserID); err != nil {
		handleTelegramError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.TelegramResetResponse{OK: true})
}

// History returns the user's recent authorization attempts, newest first.
func (h *TelegramAuthHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	attempts, err := h.service.AuthHistory(r.Context(), identity.UserID, 0)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	out := dto.TelegramAttemptsResponse{Attempts: make([]dto.TelegramAttemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		out.Attempts = append(out.Attempts, dto.TelegramAttemptResponse{
			ID:           a.ID,
			AttemptType:  string(a.AttemptType),
			Status:       string(a.Status),
			ErrorMessage: a.ErrorMessage,
			CreatedAt:    a.CreatedAt,
			FinishedAt:   a.FinishedAt,
		})
	}
	httperrors.Write(w, http.StatusOK, out)
}

func (h *TelegramAuthHandler) identity(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
	if h.service == nil {
		writeInternal(w, "TELEGRAM_SERVICE_UNAVAILABLE", "telegram service is unavailable")
		return authsvc.Identity{}, false
	}
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return authsvc.Identity{}, false
	}
	return identity, true
}

func statusResponse(res tgsvc.StatusResult) dto.TelegramStatusResponse {
	out := dto.TelegramStatusResponse{
		Status: string(res.Status),
		Error:  res.Error,
	}
	if res.Status == enums.AuthStatusSuccess && res.User != nil {
		out.User = telegramUserResponse(res.User)
	}
	return out
}

func telegramUserResponse(user *model.TelegramUser) *dto.TelegramUserResponse {
	return &dto.TelegramUserResponse{
		TelegramID: user.TelegramID,
		Username:   user.Username,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Phone:      user.Phone,
		AvatarURL:  user.AvatarURL,
	}
}

func handleTelegramError(w http.ResponseWriter, err error) {
	var rateLimited *tgsvc.RateLimitedError
	var floodWait *tgsvc.FloodWaitError

	switch {
	case errors.As(err, &rateLimited):
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "RATE_LIMITED",
			Message:       "qr generation rate limit exceeded",
			RetryAfterSec: rateLimited.RetryAfterSec,
		})
	case errors.As(err, &floodWait):
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "TELEGRAM_FLOOD_WAIT",
			Message:       "telegram asked to slow down",
			RetryAfterSec: int64(floodWait.RetryAfter.Seconds()),
		})
	case errors.Is(err, tgsvc.ErrUserNotLinked), errors.Is(err, tgsvc.ErrNoActiveLogin):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
			Code:    "NO_ACTIVE_LOGIN",
			Message: "no active login flow, generate a qr code first",
		})
	case errors.Is(err, tgsvc.ErrInvalidPassword):
		writeBadRequest(w, "INVALID_PASSWORD", "invalid 2fa password")
	case errors.Is(err, tgsvc.ErrNotAuthorized):
		writeUnauthorized(w, "TELEGRAM_NOT_AUTHORIZED", "telegram account is not authorized")
	case errors.Is(err, tgsvc.ErrConnectionLost):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "CONNECTION_LOST",
			Message: "telegram connection lost, generate a new qr code",
		})
	case errors.Is(err, tgsvc.ErrChatNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
			Code:    "CHAT_NOT_FOUND",
			Message: "chat not found",
		})
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
