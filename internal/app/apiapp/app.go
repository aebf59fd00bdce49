package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agolubenk/hr-hf-helper-sub001/internal/config"
	s3infra "github.com/agolubenk/hr-hf-helper-sub001/internal/infra/s3"
	tginfra "github.com/agolubenk/hr-hf-helper-sub001/internal/infra/telegram"
	"github.com/agolubenk/hr-hf-helper-sub001/internal/jobs/cleanup"
	pgrepo "github.com/agolubenk/hr-hf-helper-sub001/internal/repo/postgres"
	redrepo "github.com/agolubenk/hr-hf-helper-sub001/internal/repo/redis"
	authsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/auth"
	ratesvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/rate"
	tgsvc "github.com/agolubenk/hr-hf-helper-sub001/internal/services/telegram"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	manager    *tgsvc.Manager
	cleanupJob *cleanup.Job
	jobCancel  context.CancelFunc
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	sessionRepo := redrepo.NewSessionRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)

	userRepo := pgrepo.NewUserRepo(pool)
	tgUserRepo := pgrepo.NewTelegramUserRepo(pool)
	attemptRepo := pgrepo.NewAuthAttemptRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager, sessionRepo, userStoreAdapter{repo: userRepo}, cfg.Auth.RefreshTTL)

	var factory tgsvc.ClientFactory
	if cfg.Telegram.DemoEnabled() {
		log.Info("telegram demo mode enabled")
		factory = tgsvc.DemoFactory(tgUserRepo)
	} else {
		factory = tgsvc.MTProtoFactory(tgsvc.MTProtoConfig{
			AppID:   cfg.Telegram.AppID,
			AppHash: cfg.Telegram.AppHash,
		}, tgUserRepo, log)
	}

	manager := tgsvc.NewManager(factory, cfg.Telegram.IdleTTL, cfg.Telegram.MaxLifetime, log)
	telegramService := tgsvc.NewService(tgUserRepo, attemptRepo, manager, tgsvc.Config{
		PollTimeout: cfg.Telegram.PollTimeout,
	}, log)
	telegramService.AttachRateLimiter(ratesvc.NewLimiter(rateRepo, cfg.Telegram.QRPerMinute, cfg.Telegram.QRPerHour))

	if cfg.Bot.Token != "" {
		if bot, err := tginfra.NewBot(cfg.Bot.Token); err != nil {
			log.Warn("bot init failed, login notifications disabled", zap.Error(err))
		} else {
			telegramService.AttachNotifier(bot)
		}
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
		telegramService.AttachAvatars(tgsvc.NewAvatarStorage(s3Client, cfg.S3.Bucket))
	}

	cleanupJob := cleanup.New(attemptRepo, tgUserRepo, cfg.Cleanup.QRStaleAfter, cfg.Cleanup.AttemptRetention, log)
	cleanupJob.AttachSweeper(manager)

	RegisterRoutes(r, Dependencies{
		AuthService:     authService,
		TelegramService: telegramService,
		Logger:          log,
		Config:          cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		manager:    manager,
		cleanupJob: cleanupJob,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	jobCtx, cancel := context.WithCancel(context.Background())
	a.jobCancel = cancel
	go a.cleanupJob.RunPeriodically(jobCtx, a.cfg.Cleanup.Interval)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if a.jobCancel != nil {
		a.jobCancel()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.manager != nil {
		a.manager.Close(ctx)
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}

// userStoreAdapter maps the postgres rows onto the auth service's user
// surface, translating the not-found sentinel.
type userStoreAdapter struct {
	repo *pgrepo.UserRepo
}

func (a userStoreAdapter) FindByEmail(ctx context.Context, email string) (authsvc.UserRecord, error) {
	user, err := a.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return authsvc.UserRecord{}, authsvc.ErrUserNotFound
		}
		return authsvc.UserRecord{}, err
	}

	return authsvc.UserRecord{
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
	}, nil
}

func (a userStoreAdapter) FindByID(ctx context.Context, userID int64) (authsvc.UserRecord, error) {
	user, err := a.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return authsvc.UserRecord{}, authsvc.ErrUserNotFound
		}
		return authsvc.UserRecord{}, err
	}

	return authsvc.UserRecord{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	}, nil
}
