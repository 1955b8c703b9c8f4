package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/codequest/internal/model"
)

// --- 統合テスト（DBに接続できない環境ではスキップ） ---

// createSessionAccount はセッションテスト用のアカウントを作成する。
func createSessionAccount(t *testing.T, accountRepo *PostgresAccountRepo, email string) *model.Account {
	t.Helper()

	account, err := accountRepo.CreateIfAbsent(context.Background(), AccountDraft{
		Email: email,
		Name:  "session-test",
		Role:  model.RoleUser,
	})
	if err != nil {
		t.Fatalf("テスト用アカウントの作成に失敗: %v", err)
	}
	return account
}

func TestPostgresSessionRepo_CreateAndFind(t *testing.T) {
	db, accountRepo := setupTestRepo(t)
	defer db.Close()

	repo := NewPostgresSessionRepo(db)
	account := createSessionAccount(t, accountRepo, "session1@example.com")

	session := &model.Session{
		ID:        "test-session-create-find",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	found, err := repo.FindByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found == nil {
		t.Fatal("session not found")
	}
	if found.AccountID != account.ID {
		t.Errorf("AccountID = %q, want %q", found.AccountID, account.ID)
	}
}

func TestPostgresSessionRepo_FindByID_Expired(t *testing.T) {
	db, accountRepo := setupTestRepo(t)
	defer db.Close()

	repo := NewPostgresSessionRepo(db)
	account := createSessionAccount(t, accountRepo, "session2@example.com")

	session := &model.Session{
		ID:        "test-session-expired",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	found, err := repo.FindByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found != nil {
		t.Error("expired session should not be returned")
	}
}

func TestPostgresSessionRepo_FindByID_NotFound(t *testing.T) {
	db, _ := setupTestRepo(t)
	defer db.Close()

	repo := NewPostgresSessionRepo(db)

	found, err := repo.FindByID(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found != nil {
		t.Error("nonexistent session should return nil without error")
	}
}

func TestPostgresSessionRepo_DeleteByID(t *testing.T) {
	db, accountRepo := setupTestRepo(t)
	defer db.Close()

	repo := NewPostgresSessionRepo(db)
	account := createSessionAccount(t, accountRepo, "session3@example.com")

	session := &model.Session{
		ID:        "test-session-delete",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := repo.DeleteByID(context.Background(), session.ID); err != nil {
		t.Fatalf("DeleteByID returned error: %v", err)
	}

	found, err := repo.FindByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if found != nil {
		t.Error("deleted session should not be found")
	}
}

func TestPostgresSessionRepo_DeleteByAccountID(t *testing.T) {
	db, accountRepo := setupTestRepo(t)
	defer db.Close()

	repo := NewPostgresSessionRepo(db)
	account := createSessionAccount(t, accountRepo, "session4@example.com")

	for _, id := range []string{"acct-session-1", "acct-session-2"} {
		session := &model.Session{
			ID:        id,
			AccountID: account.ID,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}
		if err := repo.Create(context.Background(), session); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	if err := repo.DeleteByAccountID(context.Background(), account.ID); err != nil {
		t.Fatalf("DeleteByAccountID returned error: %v", err)
	}

	for _, id := range []string{"acct-session-1", "acct-session-2"} {
		found, err := repo.FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("FindByID returned error: %v", err)
		}
		if found != nil {
			t.Errorf("session %q should be deleted", id)
		}
	}
}
