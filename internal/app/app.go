package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/bookchat/internal/chat"
	"github.com/hitoshi/bookchat/internal/config"
	"github.com/hitoshi/bookchat/internal/database"
	"github.com/hitoshi/bookchat/internal/handler"
	"github.com/hitoshi/bookchat/internal/logger"
	"github.com/hitoshi/bookchat/internal/metrics"
	"github.com/hitoshi/bookchat/internal/middleware"
	"github.com/hitoshi/bookchat/internal/remotelog"
	"github.com/hitoshi/bookchat/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数（と.env）からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("github_repo", cfg.GitHubRepo),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// server はHTTPサーバーと終了時に解放するリソースをまとめたもの。
type server struct {
	httpServer *http.Server
	closers    []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newServer はDB接続・リモートログ・全依存関係をワイヤリングしたHTTPサーバーを構築する。
// リモートリポジトリの確認・作成に失敗した場合は起動を中止する。
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *server, err error) {
	srv := &server{}
	// 起動に失敗した場合はそこまでに確保したリソースを解放する
	defer func() {
		if err != nil {
			srv.close()
		}
	}()

	// 1. DB接続
	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	srv.closers = append(srv.closers, func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established", slog.String("dialect", string(dialect)))

	if cfg.AutoMigrate {
		if err := database.Migrate(db, dialect); err != nil {
			return nil, err
		}
		log.Info("database schema is up to date")
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewSQLUserRepo(db, dialect)
	messageRepo := repository.NewSQLMessageRepo(db, dialect)

	// 3. リモートログの初期化
	owner, name := remotelog.SplitRepository(cfg.GitHubRepo)
	remote, err := remotelog.NewClient(
		&http.Client{Timeout: cfg.GitHubTimeout},
		remotelog.Config{
			Token:     cfg.GitHubToken,
			Owner:     owner,
			Repo:      name,
			APIURL:    cfg.GitHubAPIURL,
			ScanLimit: cfg.RemoteScanLimit,
		},
		log,
	)
	if err != nil {
		return nil, err
	}
	if err := remote.EnsureRepository(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize remote log: %w", err)
	}

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 5. ドメインサービス
	chatService := chat.NewService(userRepo, messageRepo, remote, collector, log)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPost),
	)
	srv.closers = append(srv.closers, rateLimiter.Stop)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MessageService:    chatService,
		UserService:       chatService,
		HealthChecker:     db,
		Gatherer:          reg,
	})

	srv.httpServer = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.GitHubTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	srv, err := newServer(context.Background(), cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.close()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", srv.httpServer.Addr),
		)
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
