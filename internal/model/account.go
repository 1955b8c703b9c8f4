// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。設定された1つの管理者メールアドレスにのみ付与される。
	RoleAdmin Role = "admin"
)

// Account は学習プラットフォームの利用者を表す。
// メールアドレスを自然キーとし、ゲーミフィケーション状態（XP、レベル、ストリーク）を保持する。
type Account struct {
	ID    string
	Email string
	Name  string

	// CredentialDigest はパスワードのbcryptダイジェスト。
	// パスワードレスサインインで作成されたアカウントでは空文字列。
	CredentialDigest string

	Role Role

	// ゲーミフィケーションカウンター。作成時はすべて最小値
	// （XP=0, Level=1, Streak=0, MaxStreak=0）で初期化される。
	XP        int
	Level     int
	Streak    int
	MaxStreak int

	// LastActivityAt はストリーク判定に使う最終学習日時。未学習の場合はnil。
	LastActivityAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin は管理者アカウントかどうかを返す。
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
