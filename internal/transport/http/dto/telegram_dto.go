package dto

import "time"

type TelegramQRResponse struct {
	Status      string `json:"status"`
	QRCode      string `json:"qr_code,omitempty"`
	QRURL       string `json:"qr_url,omitempty"`
	SessionName string `json:"session_name,omitempty"`
}

type TelegramUserResponse struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

type TelegramStatusResponse struct {
	Status string                `json:"status"`
	User   *TelegramUserResponse `json:"user,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type TelegramVerifyRequest struct {
	Password string `json:"password"`
}

type TelegramChatResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	UnreadCount int       `json:"unread_count"`
	LastMessage string    `json:"last_message,omitempty"`
	LastDate    time.Time `json:"last_date"`
}

type TelegramChatsResponse struct {
	Chats []TelegramChatResponse `json:"chats"`
}

type TelegramMessageResponse struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
	Outgoing bool      `json:"outgoing"`
}

type TelegramMessagesResponse struct {
	ChatTitle string                    `json:"chat_title"`
	Messages  []TelegramMessageResponse `json:"messages"`
}

type TelegramResetResponse struct {
	OK bool `json:"ok"`
}

type TelegramAttemptResponse struct {
	ID           int64      `json:"id"`
	AttemptType  string     `json:"attempt_type"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type TelegramAttemptsResponse struct {
	Attempts []TelegramAttemptResponse `json:"attempts"`
}
