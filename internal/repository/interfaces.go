// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/codequest/internal/model"
)

// AccountDraft はアカウント作成時の入力を表す。
// IDとゲーミフィケーションカウンターはストア側で採番・初期化される。
type AccountDraft struct {
	Email string
	Name  string

	// CredentialDigest はパスワードレスサインイン経由の作成では空文字列。
	CredentialDigest string

	Role model.Role
}

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByEmail は指定メールアドレスのアカウントを取得する。見つからない場合はnilを返す。
	// 一意判定は完全一致で行う。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// CreateIfAbsent はメールアドレスが未登録の場合のみアカウントを作成する。
	// 一意制約をストレージ層で検査するため、同一メールアドレスへの並行作成は
	// 片方のみ成功し、負けた側にはDUPLICATE_ACCOUNTのAPIErrorが返る。
	CreateIfAbsent(ctx context.Context, draft AccountDraft) (*model.Account, error)

	// UpdateProgress はゲーミフィケーションカウンター
	// （xp, level, streak, max_streak, last_activity_at）を更新する。
	UpdateProgress(ctx context.Context, account *model.Account) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}
