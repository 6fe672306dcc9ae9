package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookchat/internal/metrics"
	"github.com/hitoshi/bookchat/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// メッセージ・ユーザー
	MessageService MessageServiceInterface
	UserService    UserServiceInterface

	// 運用エンドポイント。nilの場合は該当ルートを登録しない。
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → RequestID → Logging → Recovery → SecurityHeaders → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
// 未定義のパスとメソッドはいずれも404 {"error": "Not found"} を返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// CORSを最上位に適用（OPTIONSはここで応答する）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRequestIDMiddleware())
	var statuses middleware.StatusRecorder
	if deps.Metrics != nil {
		statuses = deps.Metrics
	}
	r.Use(middleware.NewLoggingMiddleware(logger, statuses))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	messageHandler := NewMessageHandler(deps.MessageService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Get("/health", healthHandler(deps.HealthChecker))
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	r.Group(func(r chi.Router) {
		limitPost := func(h http.HandlerFunc) http.Handler { return h }
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			limitPost = func(h http.HandlerFunc) http.Handler {
				return deps.RateLimiter.PostMiddleware()(h)
			}
		}

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", messageHandler.ListMessages)
			r.Method(http.MethodPost, "/", limitPost(messageHandler.PostMessage))
			r.Get("/search", messageHandler.SearchMessages)
			r.Get("/stats", messageHandler.MessageStats)
		})

		r.Method(http.MethodPost, "/users", limitPost(userHandler.RegisterUser))
	})

	return r
}
