package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

const maxDialogs = 50

// MTProtoConfig carries the application credentials issued by Telegram.
type MTProtoConfig struct {
	AppID   int
	AppHash string
}

// mtprotoClient owns a live gotd connection. The connection runs in a
// dedicated goroutine; all operations are closures shipped to that goroutine
// over the requests channel, so HTTP handlers never touch the MTProto client
// directly. One request is served at a time, which matches the human-driven
// scan -> poll -> verify sequence.
type mtprotoClient struct {
	log      *zap.Logger
	client   *telegram.Client
	api      *tg.Client
	loggedIn <-chan struct{}

	requests chan workerRequest
	cancel   context.CancelFunc
	done     chan struct{}

	// touched only from the worker goroutine
	qrToken *qrlogin.Token
}

type workerRequest struct {
	fn   func(ctx context.Context) error
	done chan error
}

func newMTProtoClient(cfg MTProtoConfig, storage *dbSessionStorage, log *zap.Logger) (*mtprotoClient, error) {
	if cfg.AppID <= 0 || cfg.AppHash == "" {
		return nil, fmt.Errorf("telegram api credentials are not configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	dispatcher := tg.NewUpdateDispatcher()
	c := &mtprotoClient{
		log:      log,
		loggedIn: qrlogin.OnLoginToken(dispatcher),
		requests: make(chan workerRequest),
		done:     make(chan struct{}),
	}
	c.client = telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx)

	return c, nil
}

func (c *mtprotoClient) run(ctx context.Context) {
	defer close(c.done)

	err := c.client.Run(ctx, func(ctx context.Context) error {
		c.api = c.client.API()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case req := <-c.requests:
				req.done <- req.fn(ctx)
			}
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("telegram client stopped", zap.Error(err))
	}
}

// do ships fn to the worker goroutine and waits for its result. When the
// worker has already stopped, the connection is gone and the caller must
// regenerate the QR.
func (c *mtprotoClient) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := workerRequest{fn: fn, done: make(chan error, 1)}

	select {
	case c.requests <- req:
	case <-c.done:
		return ErrConnectionLost
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-c.done:
		return ErrConnectionLost
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *mtprotoClient) GenerateQR(ctx context.Context) (QRCode, error) {
	var code QRCode
	err := c.do(ctx, func(ctx context.Context) error {
		token, err := c.client.QR().Export(ctx)
		if err != nil {
			return normalizeTransportErr(err)
		}
		c.qrToken = &token

		png, err := encodeQRPNG(token.URL())
		if err != nil {
			return err
		}

		code = QRCode{
			URL:       token.URL(),
			PNG:       png,
			ExpiresAt: token.Expires(),
		}
		return nil
	})
	return code, err
}

func (c *mtprotoClient) WaitForAuth(ctx context.Context, timeout time.Duration) (AuthOutcome, error) {
	var outcome AuthOutcome
	err := c.do(ctx, func(ctx context.Context) error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-c.loggedIn:
			if _, err := c.client.QR().Import(ctx); err != nil {
				if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
					outcome = AuthOutcome{Status: enums.AuthStatusTwoFactorRequired}
					return nil
				}
				return normalizeTransportErr(err)
			}

			result, err := c.collectSelf(ctx)
			if err != nil {
				return err
			}
			outcome = result
			return nil
		case <-timer.C:
			if c.qrToken != nil && time.Now().After(c.qrToken.Expires()) {
				outcome = AuthOutcome{Status: enums.AuthStatusTimeout}
				return nil
			}
			outcome = AuthOutcome{Status: enums.AuthStatusWaiting}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return outcome, err
}

func (c *mtprotoClient) SubmitPassword(ctx context.Context, password string) (AuthOutcome, error) {
	var outcome AuthOutcome
	err := c.do(ctx, func(ctx context.Context) error {
		if _, err := c.client.Auth().Password(ctx, password); err != nil {
			if tgerr.Is(err, "PASSWORD_HASH_INVALID") {
				return ErrInvalidPassword
			}
			return normalizeTransportErr(err)
		}

		result, err := c.collectSelf(ctx)
		if err != nil {
			return err
		}
		outcome = result
		return nil
	})
	return outcome, err
}

func (c *mtprotoClient) Chats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	err := c.do(ctx, func(ctx context.Context) error {
		raw, err := c.fetchDialogs(ctx)
		if err != nil {
			return err
		}
		chats = mapDialogs(raw)
		return nil
	})
	return chats, err
}

func (c *mtprotoClient) Messages(ctx context.Context, chatID int64) ([]model.Message, string, error) {
	var (
		messages []model.Message
		title    string
	)
	err := c.do(ctx, func(ctx context.Context) error {
		raw, err := c.fetchDialogs(ctx)
		if err != nil {
			return err
		}
		peer, chatTitle, err := resolvePeer(raw, chatID)
		if err != nil {
			return err
		}
		title = chatTitle

		history, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  peer,
			Limit: maxDialogs,
		})
		if err != nil {
			return normalizeTransportErr(err)
		}
		messages = mapHistory(history)
		return nil
	})
	return messages, title, err
}

func (c *mtprotoClient) Close(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// collectSelf reads the freshly authorized account's identity and, best
// effort, its profile photo.
func (c *mtprotoClient) collectSelf(ctx context.Context) (AuthOutcome, error) {
	self, err := c.client.Self(ctx)
	if err != nil {
		return AuthOutcome{}, normalizeTransportErr(err)
	}

	outcome := AuthOutcome{
		Status: enums.AuthStatusSuccess,
		Identity: &model.TelegramIdentity{
			TelegramID: self.ID,
			Username:   self.Username,
			FirstName:  self.FirstName,
			LastName:   self.LastName,
			Phone:      self.Phone,
		},
	}

	if photo, ok := self.Photo.(*tg.UserProfilePhoto); ok {
		data, err := c.downloadProfilePhoto(ctx, photo.PhotoID)
		if err != nil {
			c.log.Debug("profile photo download failed", zap.Error(err))
		} else {
			outcome.PhotoPNG = data
		}
	}

	return outcome, nil
}

func (c *mtprotoClient) downloadProfilePhoto(ctx context.Context, photoID int64) ([]byte, error) {
	loc := &tg.InputPeerPhotoFileLocation{
		Peer:    &tg.InputPeerSelf{},
		PhotoID: photoID,
		Big:     true,
	}

	var buf bytes.Buffer
	if _, err := downloader.NewDownloader().Download(c.api, loc).Stream(ctx, &buf); err != nil {
		return nil, fmt.Errorf("download profile photo: %w", err)
	}

	return buf.Bytes(), nil
}

func normalizeTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{RetryAfter: wait}
	}
	if tgerr.Is(err, "AUTH_KEY_UNREGISTERED") {
		return ErrNotAuthorized
	}
	return fmt.Errorf("telegram transport: %w", err)
}
