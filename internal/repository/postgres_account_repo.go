package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/codequest/internal/model"
)

// accountColumns はSELECT句で使用するカラムリスト。
const accountColumns = `id, email, name, credential_digest, role, xp, level, streak, max_streak, last_activity_at, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByEmail は指定メールアドレスのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		email,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// CreateIfAbsent はメールアドレスが未登録の場合のみアカウントを作成する。
// accounts.emailの一意制約に依存し、existence check + insert をアトミックに行う。
// 並行する作成リクエストで負けた側の一意制約違反（23505）は
// DUPLICATE_ACCOUNTのAPIErrorに変換して返す。
func (r *PostgresAccountRepo) CreateIfAbsent(ctx context.Context, draft AccountDraft) (*model.Account, error) {
	now := time.Now()
	account := &model.Account{
		ID:               uuid.New().String(),
		Email:            draft.Email,
		Name:             draft.Name,
		CredentialDigest: draft.CredentialDigest,
		Role:             draft.Role,
		XP:               0,
		Level:            1,
		Streak:           0,
		MaxStreak:        0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, name, credential_digest, role, xp, level, streak, max_streak, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.Email, account.Name, account.CredentialDigest,
		string(account.Role), account.XP, account.Level, account.Streak,
		account.MaxStreak, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewDuplicateAccountError(draft.Email)
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return account, nil
}

// UpdateProgress はゲーミフィケーションカウンターを更新する。
func (r *PostgresAccountRepo) UpdateProgress(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET xp = $1, level = $2, streak = $3, max_streak = $4, last_activity_at = $5, updated_at = $6
		 WHERE id = $7`,
		account.XP, account.Level, account.Streak, account.MaxStreak,
		nullableTime(account.LastActivityAt), account.UpdatedAt, account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// scanAccount は1行分のアカウントをスキャンする。
func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	var role string
	var lastActivityAt sql.NullTime

	err := row.Scan(
		&account.ID, &account.Email, &account.Name, &account.CredentialDigest,
		&role, &account.XP, &account.Level, &account.Streak, &account.MaxStreak,
		&lastActivityAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = model.Role(role)
	if lastActivityAt.Valid {
		t := lastActivityAt.Time
		account.LastActivityAt = &t
	}
	return account, nil
}

// isUniqueViolation はPostgreSQLの一意制約違反（SQLSTATE 23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

// nullableTime は*time.TimeをNULL許容のsql.NullTimeに変換する。
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
