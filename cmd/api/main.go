// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/config"
	"github.com/yourusername/passgate/internal/credential"
	"github.com/yourusername/passgate/internal/logging"
	"github.com/yourusername/passgate/internal/metrics"
	"github.com/yourusername/passgate/internal/storage"
	"github.com/yourusername/passgate/internal/views"
)

const serviceName = "passgate-api"

func main() {
	if err := run(); err != nil {
		slog.Error("API server stopped", "error", err)
		os.Exit(1)
	}
}

// run は設定を読み込んでサーバーを起動し、シグナルを受けるまで待ちます。
func run() error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(serviceName, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// メトリクスはプロセス既定ではなく専用のレジストリに登録する
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	users, closeStore, err := setupUserStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up user store: %w", err)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := setupAuth(ctx, cfg, users, logger, m)
	if err != nil {
		return fmt.Errorf("failed to set up auth: %w", err)
	}

	router, err := newRouter(cfg, manager, registry)
	if err != nil {
		return fmt.Errorf("failed to set up router: %w", err)
	}

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           methodOverride(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode, "store", cfg.UserStore)
	return serve(ctx, srv, logger)
}

// serve は ctx が終了するまでリクエストを受け付け、その後グレースフルシャットダウンします。
// 待ち受けに失敗した場合はそのエラーを返します。
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// setupAuth はハッシュ・ゲート・認証方式を組み立てて Manager を返します。
func setupAuth(ctx context.Context, cfg *config.Config, users storage.UserStore, logger *slog.Logger, m *metrics.Metrics) (*auth.Manager, error) {
	policy, err := auth.ParsePolicy(cfg.UniquenessPolicy)
	if err != nil {
		return nil, err
	}

	hasher := auth.NewBcryptHasher(auth.HasherOptions{
		Cost:        cfg.BcryptCost,
		Timeout:     cfg.HashTimeout,
		Concurrency: cfg.HashConcurrency,
		Metrics:     m,
	})

	gate := auth.NewGate(users, hasher, auth.GateOptions{
		Policy:      policy,
		MaxLifetime: cfg.SessionMaxLifetime,
		IdleTimeout: cfg.SessionIdleTimeout,
		Logger:      logger,
		Metrics:     m,
	})

	local, err := auth.NewLocalStrategy(ctx, users, hasher)
	if err != nil {
		return nil, err
	}
	registry := auth.NewRegistry(local)
	strategy, err := registry.Get(cfg.AuthStrategy)
	if err != nil {
		return nil, err
	}

	return auth.NewManager(auth.ManagerOptions{
		Gate:      gate,
		Strategy:  strategy,
		Validator: credential.NewValidator(),
		Logger:    logger,
		Metrics:   m,
	}), nil
}

// newRouter はミドルウェアとルーティングを設定した gin.Engine を返します。
func newRouter(cfg *config.Config, manager *auth.Manager, gatherer prometheus.Gatherer) (*gin.Engine, error) {
	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	tmpl, err := views.Load()
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   manager.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.IsProduction() || cfg.GinMode == gin.ReleaseMode,
		// フォーム送信後のリダイレクトでもクッキーを送るため Lax
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, manager, gatherer)
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": "0.1.0",
	})
}

// setupRoutes は画面と認証周りの配線を行います。
func setupRoutes(router *gin.Engine, manager *auth.Manager, gatherer prometheus.Gatherer) {
	// まずは誰でも叩けるヘルスチェックとメトリクスを登録
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	router.GET("/", manager.RequireLogin(), manager.Home)

	// ログイン済みの場合は / へ戻す
	guest := router.Group("")
	guest.Use(manager.RequireGuest())
	{
		guest.GET("/login", manager.LoginForm)
		guest.POST("/login", manager.Login)
		guest.GET("/register", manager.RegisterForm)
		guest.POST("/register", manager.Register)
	}

	router.DELETE("/logout", manager.Logout)
}
