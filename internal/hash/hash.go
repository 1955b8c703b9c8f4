// Package hash はパスワードの一方向ハッシュ化を提供する。
package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost はbcryptのコストファクター。
const defaultCost = 10

// Hasher はパスワードハッシュ化のインターフェース。
// サービス層がアルゴリズムに依存しないための抽象化。
type Hasher interface {
	// Hash は平文パスワードからソルト付きダイジェストを生成する。
	// 同じ入力でも呼び出しごとに異なるダイジェストが返る。
	Hash(plaintext string) (string, error)

	// Verify は平文パスワードとダイジェストを定数時間で比較する。
	// 復号は行わず、再導出した値の比較のみで判定する。
	Verify(plaintext, digest string) bool
}

// BcryptHasher はbcryptによるHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はデフォルトコストのBcryptHasherを生成する。
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: defaultCost}
}

// Hash は平文パスワードからbcryptダイジェストを生成する。
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードとbcryptダイジェストを比較する。
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// compile-time interface check
var _ Hasher = (*BcryptHasher)(nil)
