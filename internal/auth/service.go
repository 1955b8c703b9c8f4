// Package auth はパスワードレスサインインとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/codequest/internal/model"
	"github.com/hitoshi/codequest/internal/repository"
)

// Provisioner はアカウントのcreate-if-absentを行うインターフェース。
// サインアップとサインインはこの1つのプリミティブに合流する。
type Provisioner interface {
	// ProvisionPasswordless は既存アカウントを返すか、なければダイジェストなしで作成する。
	ProvisionPasswordless(ctx context.Context, name, email string) (*model.Account, bool, error)
}

// MetricsRecorder はサインイン関連メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordSignIn(newAccount bool)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provisioner Provisioner
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	metrics     MetricsRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。metricsはnil許容。
func NewService(
	provisioner Provisioner,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		provisioner: provisioner,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		config:      config,
	}
}

// SignIn はパスワードレスサインインを処理し、セッションを発行する。
// 既存アカウントはそのまま返し、カウンターは一切変更しない。
// 未登録のメールアドレスの場合はアカウントを自動作成する
// （サインインはサインアップを兼ねる。所有確認は行わないプロダクト上の割り切り）。
func (s *Service) SignIn(ctx context.Context, name, email string) (*model.Account, *model.Session, error) {
	// 1. 入力検証（サインアップより緩く、@を含む非空文字列のみ要求する）
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil, model.NewInvalidInputError("メールアドレスは必須です")
	}
	if !strings.Contains(email, "@") {
		return nil, nil, model.NewInvalidInputError("メールアドレスの形式が正しくありません")
	}

	// 2. create-if-absent（競合時は勝者のアカウントが返る）
	account, created, err := s.provisioner.ProvisionPasswordless(ctx, name, email)
	if err != nil {
		// ストア障害ではセッションを確立しない
		return nil, nil, err
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		slog.Error("セッションの作成に失敗しました",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewStoreUnavailableError()
	}

	slog.Info("サインインしました",
		slog.String("account_id", account.ID),
		slog.Bool("new_account", created),
	)
	if s.metrics != nil {
		s.metrics.RecordSignIn(created)
	}

	return account, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("サインアウトしました", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentAccount はセッションから現在のアカウントを取得する。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}

	return account, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, accountID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		AccountID: accountID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
