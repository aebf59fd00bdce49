package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	authsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/auth"
	tgsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/telegram"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/transport/http/dto"
	httperrors "github.com/agolubenk/hr-hf-helper-sub001/internal/transport/http/errors"
)

type TelegramChatsHandler struct {
	service *tgsvc.Service
}

func NewTelegramChatsHandler(service *tgsvc.Service) *TelegramChatsHandler {
	return &TelegramChatsHandler{service: service}
}

func (h *TelegramChatsHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	chats, err := h.service.Chats(r.Context(), identity.UserID)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	out := dto.TelegramChatsResponse{Chats: make([]dto.TelegramChatResponse, 0, len(chats))}
	for _, chat := range chats {
		out.Chats = append(out.Chats, dto.TelegramChatResponse{
			ID:          chat.ID,
			Title:       chat.Title,
			Type:        chat.Type,
			UnreadCount: chat.UnreadCount,
			LastMessage: chat.LastMessage,
			LastDate:    chat.LastDate,
		})
	}

	httperrors.Write(w, http.StatusOK, out)
}

func (h *TelegramChatsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	rawID := strings.TrimSpace(chi.URLParam(r, "chatID"))
	chatID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "chat id must be an integer")
		return
	}

	messages, title, err := h.service.Messages(r.Context(), identity.UserID, chatID)
	if err != nil {
		handleTelegramError(w, err)
		return
	}

	out := dto.TelegramMessagesResponse{
		ChatTitle: title,
		Messages:  make([]dto.TelegramMessageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		out.Messages = append(out.Messages, dto.TelegramMessageResponse{
			ID:       msg.ID,
			Text:     msg.Text,
			Date:     msg.Date,
			Outgoing: msg.Outgoing,
		})
	}

	httperrors.Write(w, http.StatusOK, out)
}

func (h *TelegramChatsHandler) identity(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
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
