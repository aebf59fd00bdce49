package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/enums"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/domain/model"
)

type fakeUserStore struct {
	mu   sync.Mutex
	rows map[int64]*model.TelegramUser
	seq  int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{rows: make(map[int64]*model.TelegramUser)}
}

func (s *fakeUserStore) FindByUserID(_ context.Context, userID int64) (model.TelegramUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return model.TelegramUser{}, ErrUserNotLinked
	}
	return *row, nil
}

func (s *fakeUserStore) GetOrCreate(_ context.Context, userID int64) (model.TelegramUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[userID]; ok {
		return *row, nil
	}
	s.seq++
	row := &model.TelegramUser{
		ID:          s.seq,
		UserID:      userID,
		SessionName: "tg_test",
	}
	s.rows[userID] = row
	return *row, nil
}

func (s *fakeUserStore) SaveIdentity(_ context.Context, userID int64, identity model.TelegramIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return ErrUserNotLinked
	}
	now := time.Now()
	row.TelegramID = identity.TelegramID
	row.Username = identity.Username
	row.FirstName = identity.FirstName
	row.LastName = identity.LastName
	row.Phone = identity.Phone
	row.IsAuthorized = true
	row.AuthorizedAt = &now
	row.QRLoginActive = false
	return nil
}

func (s *fakeUserStore) SetQRLoginActive(_ context.Context, userID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return ErrUserNotLinked
	}
	row.QRLoginActive = active
	row.ClientInitialized = true
	return nil
}

func (s *fakeUserStore) ClearClientFlags(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return ErrUserNotLinked
	}
	row.ClientInitialized = false
	row.QRLoginActive = false
	return nil
}

func (s *fakeUserStore) TouchActivity(_ context.Context, userID int64) error { return nil }

func (s *fakeUserStore) SetAvatarURL(_ context.Context, userID int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[userID]; ok {
		row.AvatarURL = url
	}
	return nil
}

func (s *fakeUserStore) Reset(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return ErrUserNotLinked
	}
	row.TelegramID = 0
	row.IsAuthorized = false
	row.AuthorizedAt = nil
	row.ClientInitialized = false
	row.QRLoginActive = false
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[userID]; !ok {
		return ErrUserNotLinked
	}
	delete(s.rows, userID)
	return nil
}

type attemptRecord struct {
	id     int64
	tgUser int64
	typ    enums.AttemptType
	status enums.AttemptStatus
	errMsg string
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []*attemptRecord
	seq      int64
}

func (s *fakeAttemptStore) Create(_ context.Context, telegramUserID int64, attemptType enums.AttemptType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.attempts = append(s.attempts, &attemptRecord{
		id:     s.seq,
		tgUser: telegramUserID,
		typ:    attemptType,
		status: enums.AttemptStatusPending,
	})
	return s.seq, nil
}

func (s *fakeAttemptStore) Finish(_ context.Context, attemptID int64, status enums.AttemptStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.id == attemptID && a.status == enums.AttemptStatusPending {
			a.status = status
			a.errMsg = errorMessage
			return nil
		}
	}
	return errors.New("attempt not pending")
}

func (s *fakeAttemptStore) FinishLatestPending(_ context.Context, telegramUserID int64, attemptType enums.AttemptType, status enums.AttemptStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if a.tgUser == telegramUserID && a.typ == attemptType && a.status == enums.AttemptStatusPending {
			a.status = status
			a.errMsg = errorMessage
			return nil
		}
	}
	return errors.New("no pending attempt")
}

func (s *fakeAttemptStore) ListByTelegramUser(_ context.Context, telegramUserID int64, limit int) ([]model.AuthAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuthAttempt
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		a := s.attempts[i]
		if a.tgUser != telegramUserID {
			continue
		}
		out = append(out, model.AuthAttempt{
			ID:             a.id,
			TelegramUserID: a.tgUser,
			AttemptType:    a.typ,
			Status:         a.status,
			ErrorMessage:   a.errMsg,
		})
	}
	return out, nil
}

func (s *fakeAttemptStore) count(status enums.AttemptStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.status == status {
			n++
		}
	}
	return n
}

func (s *fakeAttemptStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func newServiceForTest(t *testing.T) (*Service, *fakeUserStore, *fakeAttemptStore) {
	t.Helper()

	users := newFakeUserStore()
	attempts := &fakeAttemptStore{}
	manager := NewManager(DemoFactory(&memSessionRepo{}), time.Minute, time.Hour, nil)
	t.Cleanup(func() { manager.Close(context.Background()) })

	svc := NewService(users, attempts, manager, Config{PollTimeout: 100 * time.Millisecond}, nil)
	return svc, users, attempts
}

func TestGenerateQRStartsFlow(t *testing.T) {
	ctx := context.Background()
	svc, users, attempts := newServiceForTest(t)

	res, err := svc.GenerateQR(ctx, 1)
	if err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if res.Status != enums.AuthStatusWaiting {
		t.Fatalf("status = %s, want waiting", res.Status)
	}
	if !strings.HasPrefix(res.Image, "data:image/png;base64,") {
		t.Fatalf("image is not a data url: %.40s", res.Image)
	}
	if res.SessionName == "" {
		t.Fatal("missing session name")
	}

	row, err := users.FindByUserID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByUserID: %v", err)
	}
	if !row.QRLoginActive {
		t.Fatal("qr_login_active not set")
	}
	if attempts.total() != 1 || attempts.count(enums.AttemptStatusPending) != 1 {
		t.Fatalf("want exactly one pending attempt, have %d total", attempts.total())
	}
}

func TestGenerateQRAlreadyAuthorizedShortCircuits(t *testing.T) {
	ctx := context.Background()
	svc, users, attempts := newServiceForTest(t)

	if _, err := users.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	if err := users.SaveIdentity(ctx, 1, model.TelegramIdentity{TelegramID: 555}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	res, err := svc.GenerateQR(ctx, 1)
	if err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if res.Status != enums.AuthStatusAlreadyAuthorized {
		t.Fatalf("status = %s, want already_authorized", res.Status)
	}
	if attempts.total() != 0 {
		t.Fatalf("already authorized flow recorded %d attempts, want 0", attempts.total())
	}
}

func TestCheckStatusReadOnlyOnMissingRow(t *testing.T) {
	svc, users, _ := newServiceForTest(t)

	if _, err := svc.CheckStatus(context.Background(), 99); !errors.Is(err, ErrUserNotLinked) {
		t.Fatalf("error = %v, want ErrUserNotLinked", err)
	}
	if len(users.rows) != 0 {
		t.Fatal("status check created a row")
	}
}

func TestCheckStatusWithoutActiveLogin(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := users.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	if _, err := svc.CheckStatus(ctx, 1); !errors.Is(err, ErrNoActiveLogin) {
		t.Fatalf("error = %v, want ErrNoActiveLogin", err)
	}
}

func TestTwoFactorFlow(t *testing.T) {
	ctx := context.Background()
	svc, users, attempts := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}

	first, err := svc.CheckStatus(ctx, 1)
	if err != nil {
		t.Fatalf("first CheckStatus: %v", err)
	}
	if first.Status != enums.AuthStatusWaiting {
		t.Fatalf("first status = %s, want waiting", first.Status)
	}

	second, err := svc.CheckStatus(ctx, 1)
	if err != nil {
		t.Fatalf("second CheckStatus: %v", err)
	}
	if second.Status != enums.AuthStatusTwoFactorRequired {
		t.Fatalf("second status = %s, want 2fa_required", second.Status)
	}

	// Wrong password: failed attempt, authorization untouched.
	if _, err := svc.SubmitPassword(ctx, 1, "nope"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong password error = %v, want ErrInvalidPassword", err)
	}
	row, _ := users.FindByUserID(ctx, 1)
	if row.IsAuthorized {
		t.Fatal("wrong password flipped is_authorized")
	}
	if attempts.count(enums.AttemptStatusFailed) < 1 {
		t.Fatal("wrong password did not leave a failed attempt")
	}

	done, err := svc.SubmitPassword(ctx, 1, DemoPassword)
	if err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if done.Status != enums.AuthStatusSuccess {
		t.Fatalf("status = %s, want success", done.Status)
	}

	row, _ = users.FindByUserID(ctx, 1)
	if !row.IsAuthorized || row.TelegramID == 0 || row.AuthorizedAt == nil {
		t.Fatalf("identity not persisted atomically: %+v", row)
	}
	if row.QRLoginActive {
		t.Fatal("qr_login_active still set after authorization")
	}
	if got := attempts.count(enums.AttemptStatusSuccess); got != 1 {
		t.Fatalf("%d attempts ended success, want exactly 1", got)
	}
}

func TestCheckStatusIdempotentAfterSuccess(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := users.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	if err := users.SaveIdentity(ctx, 1, model.TelegramIdentity{TelegramID: 777}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	// No live client exists: the persisted state alone must answer.
	res, err := svc.CheckStatus(ctx, 1)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != enums.AuthStatusSuccess {
		t.Fatalf("status = %s, want success", res.Status)
	}
	if res.User == nil || res.User.TelegramID != 777 {
		t.Fatalf("unexpected user in result: %+v", res.User)
	}
}

func TestSubmitPasswordWithoutClient(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := users.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, "whatever"); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("error = %v, want ErrConnectionLost", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if _, err := svc.CheckStatus(ctx, 1); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if _, err := svc.CheckStatus(ctx, 1); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, DemoPassword); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}

	if err := svc.Reset(ctx, 1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	row, _ := users.FindByUserID(ctx, 1)
	if row.IsAuthorized || row.TelegramID != 0 || row.ClientInitialized {
		t.Fatalf("reset left state behind: %+v", row)
	}

	// Resetting again, and resetting a never-linked user, both succeed.
	if err := svc.Reset(ctx, 1); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if err := svc.Reset(ctx, 404); err != nil {
		t.Fatalf("Reset unknown user: %v", err)
	}
}

func TestChatsRequiresAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := users.GetOrCreate(ctx, 1); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	if _, err := svc.Chats(ctx, 1); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("error = %v, want ErrNotAuthorized", err)
	}
}

func TestChatsAfterAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, DemoPassword); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}

	chats, err := svc.Chats(ctx, 1)
	if err != nil {
		t.Fatalf("Chats: %v", err)
	}
	if len(chats) == 0 {
		t.Fatal("no chats returned")
	}

	messages, title, err := svc.Messages(ctx, 1, chats[0].ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if title == "" || len(messages) == 0 {
		t.Fatal("empty history")
	}
}

func TestChatsSurviveClientEviction(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, DemoPassword); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	row, err := users.FindByUserID(ctx, 1)
	if err != nil || !row.IsAuthorized {
		t.Fatalf("row not authorized after flow: %+v err=%v", row, err)
	}

	svc.manager.Evict(ctx, 1)

	chats, err := svc.Chats(ctx, 1)
	if err != nil {
		t.Fatalf("Chats after eviction: %v", err)
	}
	if len(chats) == 0 {
		t.Fatal("no chats returned after eviction")
	}
}

type denyLimiter struct{ retryAfter int64 }

func (l denyLimiter) AllowQR(context.Context, int64) (int64, bool, error) {
	return l.retryAfter, false, nil
}

func TestGenerateQRRateLimited(t *testing.T) {
	svc, _, attempts := newServiceForTest(t)
	svc.AttachRateLimiter(denyLimiter{retryAfter: 42})

	_, err := svc.GenerateQR(context.Background(), 1)
	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("error = %v, want RateLimitedError", err)
	}
	if rle.RetryAfterSec != 42 {
		t.Fatalf("retry after = %d, want 42", rle.RetryAfterSec)
	}
	if attempts.total() != 0 {
		t.Fatal("rate limited request recorded an attempt")
	}
}

func TestDisconnectKeepsAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, DemoPassword); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}

	if err := svc.Disconnect(ctx, 1); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, ok := svc.manager.Lookup(1); ok {
		t.Fatal("client still pooled after disconnect")
	}

	row, err := users.FindByUserID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByUserID: %v", err)
	}
	if !row.IsAuthorized {
		t.Fatal("disconnect must not clear authorization")
	}
	if row.ClientInitialized || row.QRLoginActive {
		t.Fatalf("client flags not cleared: %+v", row)
	}

	if err := svc.Disconnect(ctx, 1); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if err := svc.Disconnect(ctx, 99); err != nil {
		t.Fatalf("disconnect of unknown user: %v", err)
	}
}

func TestUnlinkRemovesRow(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, DemoPassword); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}

	if err := svc.Unlink(ctx, 1); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := users.FindByUserID(ctx, 1); !errors.Is(err, ErrUserNotLinked) {
		t.Fatalf("row survived unlink: err=%v", err)
	}
	if _, ok := svc.manager.Lookup(1); ok {
		t.Fatal("client still pooled after unlink")
	}

	if err := svc.Unlink(ctx, 1); err != nil {
		t.Fatalf("second unlink: %v", err)
	}
}

func TestAuthHistoryListsAttempts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceForTest(t)

	if _, err := svc.GenerateQR(ctx, 1); err != nil {
		t.Fatalf("GenerateQR: %v", err)
	}
	if _, err := svc.SubmitPassword(ctx, 1, DemoPassword); err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}

	history, err := svc.AuthHistory(ctx, 1, 10)
	if err != nil {
		t.Fatalf("AuthHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d attempts, want 2", len(history))
	}
	if history[0].AttemptType != enums.AttemptTypePassword || history[0].Status != enums.AttemptStatusSuccess {
		t.Fatalf("unexpected newest attempt: %+v", history[0])
	}

	if _, err := svc.AuthHistory(ctx, 99, 10); !errors.Is(err, ErrUserNotLinked) {
		t.Fatalf("history for unknown user: err=%v", err)
	}
}
