// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/codequest/internal/middleware"
	"github.com/hitoshi/codequest/internal/model"
)

const sessionCookieName = "session_id"

// AccountServiceInterface はサインアップハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Signup はパスワード付きサインアップを処理する。
	// 戻り値のboolはウェルカムメール送信の成否を表す。
	Signup(ctx context.Context, name, email, password string) (*model.Account, bool, error)
}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// SignIn はパスワードレスサインインを処理し、セッションを発行する。
	SignIn(ctx context.Context, name, email string) (*model.Account, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインアップ・サインイン関連のHTTPハンドラー。
type AuthHandler struct {
	accounts AccountServiceInterface
	auth     AuthServiceInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(accounts AccountServiceInterface, auth AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		auth:     auth,
		config:   config,
	}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signinRequest はサインインリクエストのボディ。
type signinRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// accountResponse はアカウント情報のAPIレスポンス。
// パスワードダイジェストは決して含めない。
type accountResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	XP             int        `json:"xp"`
	Level          int        `json:"level"`
	Streak         int        `json:"streak"`
	MaxStreak      int        `json:"maxStreak"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

// signupResponse はサインアップ成功時のレスポンス。
type signupResponse struct {
	Message   string          `json:"message"`
	User      accountResponse `json:"user"`
	EmailSent bool            `json:"emailSent"`
}

// signinResponse はサインイン成功時のレスポンス。
type signinResponse struct {
	User accountResponse `json:"user"`
}

// Signup はサインアップを処理する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	account, emailSent, err := h.accounts.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleSignupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(signupResponse{
		Message:   "アカウントを作成しました。",
		User:      toAccountResponse(account),
		EmailSent: emailSent,
	})
}

// SignIn はパスワードレスサインインを処理する。
// 未登録のメールアドレスの場合はアカウントを自動作成し、そのままサインインさせる。
// POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	account, session, err := h.auth.SignIn(r.Context(), req.Name, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signinResponse{
		User: toAccountResponse(account),
	})
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.auth.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("サインアウト処理に失敗しました", slog.String("error", logoutErr.Error()))
			// サインアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のサインイン中アカウント情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.auth.GetCurrentAccount(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("セッションからアカウントを取得できませんでした", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// --- ヘルパー関数 ---

// toAccountResponse はmodel.AccountからAPIレスポンスに変換する。
// CredentialDigestはこの変換で必ず落とされる。
func toAccountResponse(account *model.Account) accountResponse {
	return accountResponse{
		ID:             account.ID,
		Email:          account.Email,
		Name:           account.Name,
		Role:           string(account.Role),
		XP:             account.XP,
		Level:          account.Level,
		Streak:         account.Streak,
		MaxStreak:      account.MaxStreak,
		LastActivityAt: account.LastActivityAt,
	}
}

// handleSignupError はサインアップ固有のエラーマッピングを行う。
// ストア障害は詳細を漏らさず一般的な500として返す。
func handleSignupError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeStoreUnavailable {
		slog.Error("サインアップ中にストア障害が発生しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	handleServiceError(w, err)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidInput, model.ErrCodeDuplicateAccount:
		return http.StatusBadRequest
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
