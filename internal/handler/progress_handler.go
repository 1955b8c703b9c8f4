package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/codequest/internal/middleware"
	"github.com/hitoshi/codequest/internal/model"
)

// ProgressServiceInterface はプログレスハンドラーが必要とするサービスインターフェース。
type ProgressServiceInterface interface {
	// Get は現在のゲーミフィケーション状態を返す。
	Get(ctx context.Context, accountID string) (*model.Account, error)
	// AwardXP はXPを加算しレベルを再計算する。
	AwardXP(ctx context.Context, accountID string, points int) (*model.Account, error)
	// RecordActivity は学習活動を記録し、日単位のストリークを更新する。
	RecordActivity(ctx context.Context, accountID string, now time.Time) (*model.Account, error)
}

// ProgressHandler はゲーミフィケーション状態のHTTPハンドラー。
type ProgressHandler struct {
	service ProgressServiceInterface
}

// NewProgressHandler はProgressHandlerを生成する。
func NewProgressHandler(service ProgressServiceInterface) *ProgressHandler {
	return &ProgressHandler{service: service}
}

// awardXPRequest はXP加算リクエストのボディ。
type awardXPRequest struct {
	Points int `json:"points"`
}

// progressResponse はゲーミフィケーション状態のAPIレスポンス。
type progressResponse struct {
	XP             int        `json:"xp"`
	Level          int        `json:"level"`
	Streak         int        `json:"streak"`
	MaxStreak      int        `json:"maxStreak"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

// Me は現在のアカウントのゲーミフィケーション状態を返す。
// GET /api/progress/me
func (h *ProgressHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeProgressResponse(w, account)
}

// AwardXP はXP加算を処理する。
// POST /api/progress/xp
func (h *ProgressHandler) AwardXP(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req awardXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	account, err := h.service.AwardXP(r.Context(), accountID, req.Points)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeProgressResponse(w, account)
}

// RecordActivity は学習活動の記録を処理する。
// POST /api/progress/activity
func (h *ProgressHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.service.RecordActivity(r.Context(), accountID, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeProgressResponse(w, account)
}

// writeProgressResponse はゲーミフィケーション状態をJSONで書き込む。
func writeProgressResponse(w http.ResponseWriter, account *model.Account) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(progressResponse{
		XP:             account.XP,
		Level:          account.Level,
		Streak:         account.Streak,
		MaxStreak:      account.MaxStreak,
		LastActivityAt: account.LastActivityAt,
	})
}
