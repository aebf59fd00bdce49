package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/agolubenk/hr-hf-helper-sub001/internal/repo/redis"
	authsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/auth"
)

func TestLoginPasswordIssuesTokens(t *testing.T) {
	svc, cleanup := newAuthServiceForTest(t)
	defer cleanup()

	ctx := context.Background()
	res, err := svc.LoginPassword(ctx, "hr@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login password: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", res)
	}
	if res.Me.ID != 1001 || res.Me.Role != "hr" {
		t.Fatalf("unexpected identity: %+v", res.Me)
	}

	if _, err := svc.LoginPassword(ctx, "hr@example.com", "wrong"); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("wrong password should be unauthorized, got err=%v", err)
	}
	if _, err := svc.LoginPassword(ctx, "ghost@example.com", "correct-horse"); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("unknown email should be unauthorized, got err=%v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, cleanup := newAuthServiceForTest(t)
	defer cleanup()

	ctx := context.Background()
	loginRes, err := svc.LoginPassword(ctx, "hr@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login password: %v", err)
	}

	refreshRes, err := svc.Refresh(ctx, loginRes.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if refreshRes.RefreshToken == loginRes.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	if _, err := svc.Refresh(ctx, loginRes.RefreshToken); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("old refresh token should be unauthorized, got err=%v", err)
	}

	if _, err := svc.ValidateAccessToken(ctx, refreshRes.AccessToken); err != nil {
		t.Fatalf("new access token validation failed: %v", err)
	}
}

func TestMeReturnsAccountWithoutHash(t *testing.T) {
	svc, cleanup := newAuthServiceForTest(t)
	defer cleanup()

	ctx := context.Background()

	me, err := svc.Me(ctx, 1001)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.UserID != 1001 || me.Email != "hr@example.com" || me.Role != "hr" {
		t.Fatalf("unexpected record: %+v", me)
	}
	if me.PasswordHash != "" {
		t.Fatal("password hash leaked through Me")
	}

	if _, err := svc.Me(ctx, 9999); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("Me for unknown user: err=%v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	svc, cleanup := newAuthServiceForTest(t)
	defer cleanup()

	ctx := context.Background()
	loginRes, err := svc.LoginPassword(ctx, "hr@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login password: %v", err)
	}

	claims, err := svc.ValidateAccessToken(ctx, loginRes.AccessToken)
	if err != nil {
		t.Fatalf("validate access token before logout: %v", err)
	}

	if err := svc.Logout(ctx, claims.SID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := svc.ValidateAccessToken(ctx, loginRes.AccessToken); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("access token should be unauthorized after logout, got err=%v", err)
	}
}

type testUserStore struct {
	record authsvc.UserRecord
}

func (s testUserStore) FindByEmail(_ context.Context, email string) (authsvc.UserRecord, error) {
	if email != s.record.Email {
		return authsvc.UserRecord{}, authsvc.ErrUserNotFound
	}
	return s.record, nil
}

func (s testUserStore) FindByID(_ context.Context, userID int64) (authsvc.UserRecord, error) {
	if userID != s.record.UserID {
		return authsvc.UserRecord{}, authsvc.ErrUserNotFound
	}
	return s.record, nil
}

func newAuthServiceForTest(t *testing.T) (*authsvc.Service, func()) {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	repo := redrepo.NewSessionRepo(client)
	jwtManager := authsvc.NewJWTManager("test-secret", 15*time.Minute)

	hash, err := authsvc.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := testUserStore{record: authsvc.UserRecord{
		UserID:       1001,
		Email:        "hr@example.com",
		PasswordHash: hash,
		Role:         "hr",
	}}

	svc := authsvc.NewService(jwtManager, repo, users, 45*24*time.Hour)

	cleanup := func() {
		_ = client.Close()
		mini.Close()
	}

	return svc, cleanup
}
