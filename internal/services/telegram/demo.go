package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

// DemoPassword always succeeds in demo mode; any other password fails with a
// credential error, mirroring the real 2FA step.
const DemoPassword = "demo123"

const demoQRLifetime = 30 * time.Second

// demoClient simulates the whole QR flow for environments without Telegram
// API credentials. The first status poll reports waiting, the second reports
// a pending second factor; the demo password completes authorization with a
// synthetic identity derived from the TelegramUser primary key. Like the
// real client it persists a session marker, so an authorized account stays
// authorized after the pooled client is evicted or the process restarts.
type demoClient struct {
	userID   int64
	userPK   int64
	sessions SessionRepo

	mu         sync.Mutex
	restored   bool
	polls      int
	authorized bool
	closed     bool
	issuedAt   time.Time
}

func newDemoClient(userID, userPK int64, sessions SessionRepo) *demoClient {
	return &demoClient{userID: userID, userPK: userPK, sessions: sessions}
}

// restore picks up the persisted session marker once. Must be called with
// c.mu held.
func (c *demoClient) restore(ctx context.Context) {
	if c.restored {
		return
	}
	c.restored = true
	if c.sessions == nil {
		return
	}
	if data, err := c.sessions.LoadSession(ctx, c.userID); err == nil && data != "" {
		c.authorized = true
	}
}

func (c *demoClient) GenerateQR(_ context.Context) (QRCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	url := "tg://login?token=demo-" + uuid.NewString()
	png, err := encodeQRPNG(url)
	if err != nil {
		return QRCode{}, err
	}

	c.polls = 0
	c.issuedAt = time.Now()
	return QRCode{
		URL:       url,
		PNG:       png,
		ExpiresAt: c.issuedAt.Add(demoQRLifetime),
	}, nil
}

func (c *demoClient) WaitForAuth(ctx context.Context, _ time.Duration) (AuthOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.restore(ctx)
	if c.authorized {
		return AuthOutcome{Status: enums.AuthStatusSuccess, Identity: c.identity()}, nil
	}
	if c.issuedAt.IsZero() {
		return AuthOutcome{}, ErrNoActiveLogin
	}

	c.polls++
	if c.polls < 2 {
		return AuthOutcome{Status: enums.AuthStatusWaiting}, nil
	}
	return AuthOutcome{Status: enums.AuthStatusTwoFactorRequired}, nil
}

func (c *demoClient) SubmitPassword(ctx context.Context, password string) (AuthOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if password != DemoPassword {
		return AuthOutcome{}, ErrInvalidPassword
	}

	c.authorized = true
	if c.sessions != nil {
		if err := c.sessions.SaveSession(ctx, c.userID, "demo-"+uuid.NewString()); err != nil {
			return AuthOutcome{}, fmt.Errorf("persist demo session: %w", err)
		}
	}
	return AuthOutcome{Status: enums.AuthStatusSuccess, Identity: c.identity()}, nil
}

func (c *demoClient) Chats(ctx context.Context) ([]model.Chat, error) {
	c.mu.Lock()
	c.restore(ctx)
	authorized := c.authorized
	c.mu.Unlock()
	if !authorized {
		return nil, ErrNotAuthorized
	}

	now := time.Now().UTC()
	return []model.Chat{
		{ID: 1, Title: "Saved Messages", Type: "user", UnreadCount: 0, LastMessage: "Welcome to demo mode", LastDate: now},
		{ID: 2, Title: "HR Announcements", Type: "channel", UnreadCount: 3, LastMessage: "Payroll closes on Friday", LastDate: now.Add(-time.Hour)},
		{ID: 3, Title: "Recruiting Team", Type: "group", UnreadCount: 1, LastMessage: "Interview at 15:00", LastDate: now.Add(-2 * time.Hour)},
	}, nil
}

func (c *demoClient) Messages(ctx context.Context, chatID int64) ([]model.Message, string, error) {
	chats, err := c.Chats(ctx)
	if err != nil {
		return nil, "", err
	}

	for _, chat := range chats {
		if chat.ID != chatID {
			continue
		}
		now := time.Now().UTC()
		return []model.Message{
			{ID: chatID*100 + 2, Text: chat.LastMessage, Date: now, Outgoing: false},
			{ID: chatID*100 + 1, Text: "Hello from the demo account", Date: now.Add(-time.Minute), Outgoing: true},
		}, chat.Title, nil
	}

	return nil, "", ErrChatNotFound
}

func (c *demoClient) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *demoClient) identity() *model.TelegramIdentity {
	return &model.TelegramIdentity{
		TelegramID: 100_000_000 + c.userPK,
		Username:   fmt.Sprintf("demo_user_%d", c.userPK),
		FirstName:  "Demo",
		LastName:   fmt.Sprintf("User %d", c.userPK),
		Phone:      fmt.Sprintf("+999%07d", c.userPK),
	}
}
