// Package main は HTTP サーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/auth"
	"github.com/yourusername/hx-accounts/internal/config"
	"github.com/yourusername/hx-accounts/internal/htmx"
	"github.com/yourusername/hx-accounts/internal/logging"
	"github.com/yourusername/hx-accounts/internal/passwords"
	"github.com/yourusername/hx-accounts/internal/users"
	"github.com/yourusername/hx-accounts/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logging.New(cfg.LogLevel, cfg.IsRelease())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewZapLogger(zl)

	if err := run(cfg, logger); err != nil {
		logger.Error(context.Background(), "server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// アカウントの保存先
	store, err := accounts.Open(ctx, cfg.AccountStoreURL)
	if err != nil {
		return err
	}
	defer store.Close()

	hasher, err := passwords.New(cfg.PasswordHasher)
	if err != nil {
		return err
	}
	service := accounts.NewService(store, hasher)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger))

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}
	router.HTMLRender = renderer

	authManager := auth.NewManager(cfg, service, logger)

	// セッションストアの設定（クッキー署名鍵は必須）
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(authManager.CookieOptions())
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	// CORSミドルウェアの設定（許可オリジンが無ければ同一オリジンのみ）
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		router.Use(cors.New(corsConfig(origins)))
	}

	// アクティビティ記録
	activity, err := setupEvents(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := activity.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "failed to stop event workers", "error", err)
		}
	}()

	// ルーティングの設定
	router.GET("/health", handleHealth)
	policy := passwords.DefaultPolicy(cfg.PasswordMinLength)
	handler := users.NewHandler(service, authManager, policy, activity.publisher, logger, activity.options()...)
	handler.RegisterRoutes(router)

	activity.start()

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting server", "addr", srv.Addr, "mode", cfg.GinMode, "store", storeKind(cfg.AccountStoreURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "hx-accounts",
		"version": "0.1.0",
	})
}

// corsConfig は htmx のリクエスト・レスポンスヘッダーを通す CORS 設定です。
func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	cfg.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		auth.CSRFHeader,
		htmx.HeaderRequest,
		htmx.HeaderBoosted,
		"HX-Current-URL",
		"HX-Target",
		"HX-Trigger",
	}
	// htmx がレスポンスヘッダーを読めるように公開
	cfg.ExposeHeaders = []string{
		htmx.HeaderRetarget,
		htmx.HeaderReswap,
		htmx.HeaderTrigger,
		htmx.HeaderPushURL,
		htmx.HeaderRedirect,
	}
	return cfg
}
