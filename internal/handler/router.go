package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/codequest/internal/metrics"
	"github.com/hitoshi/codequest/internal/middleware"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
// *sql.DB がそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// メトリクス（nilの場合は/metricsを公開しない）
	MetricsGatherer prometheus.Gatherer
	StatusRecorder  middleware.HTTPStatusRecorder

	// サービス
	AccountService  AccountServiceInterface
	AuthService     AuthServiceInterface
	ProgressService ProgressServiceInterface
	AuthConfig      AuthHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// 認証が必要なルート（/api/progress/*）にはさらに Session → CSRF を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AccountService, deps.AuthService, deps.AuthConfig)
	progressHandler := NewProgressHandler(deps.ProgressService)

	// --- 認証不要のルート ---

	// ヘルスチェック（DB疎通を確認する）
	r.Get("/health", healthHandler(deps.HealthChecker))

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// CSRFトークン配布
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// サインアップ・サインイン
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/signin", authHandler.SignIn)
	})

	// セッション管理
	r.Route("/auth", func(r chi.Router) {
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// ゲーミフィケーション状態
		r.Route("/api/progress", func(r chi.Router) {
			r.Get("/me", progressHandler.Me)
			r.Post("/xp", progressHandler.AwardXP)
			r.Post("/activity", progressHandler.RecordActivity)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("ヘルスチェックでDB疎通に失敗しました", slog.String("error", err.Error()))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}
}
