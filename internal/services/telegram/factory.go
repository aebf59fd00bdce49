package telegram

import (
	"go.uber.org/zap"
)

// DemoFactory builds simulated clients. Used when no Telegram API
// credentials are configured. The session repo keeps demo authorization
// durable across pool eviction, mirroring the real client.
func DemoFactory(sessions SessionRepo) ClientFactory {
	return func(userID, telegramUserPK int64) (Client, error) {
		return newDemoClient(userID, telegramUserPK, sessions), nil
	}
}

// MTProtoFactory builds real clients backed by one MTProto connection each,
// with the session keyed to the platform user in sessions.
func MTProtoFactory(cfg MTProtoConfig, sessions SessionRepo, log *zap.Logger) ClientFactory {
	if log == nil {
		log = zap.NewNop()
	}
	return func(userID, _ int64) (Client, error) {
		storage := newDBSessionStorage(sessions, userID)
		return newMTProtoClient(cfg, storage, log.With(zap.Int64("user_id", userID)))
	}
}
