// Package progress はゲーミフィケーション状態（XP、レベル、ストリーク）の更新ロジックを提供する。
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/codequest/internal/model"
	"github.com/hitoshi/codequest/internal/repository"
)

// xpPerLevel は1レベルに必要なXP。レベルは xp/100 + 1 で算出する。
const xpPerLevel = 100

// Service はゲーミフィケーションカウンターの更新サービス。
// level >= 1 と maxStreak >= streak の不変条件をすべての書き込みで維持する。
type Service struct {
	accountRepo repository.AccountRepository
}

// NewService はServiceを生成する。
func NewService(accountRepo repository.AccountRepository) *Service {
	return &Service{accountRepo: accountRepo}
}

// Get は指定アカウントの現在のゲーミフィケーション状態を返す。
func (s *Service) Get(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		slog.Error("アカウントの取得に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreUnavailableError()
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// AwardXP は指定アカウントにXPを加算し、レベルを再計算する。
func (s *Service) AwardXP(ctx context.Context, accountID string, points int) (*model.Account, error) {
	if points <= 0 {
		return nil, model.NewInvalidInputError("加算XPは1以上を指定してください")
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		slog.Error("アカウントの取得に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreUnavailableError()
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}

	account.XP += points
	account.Level = account.XP/xpPerLevel + 1

	if err := s.accountRepo.UpdateProgress(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("XPを加算しました",
		slog.String("account_id", accountID),
		slog.Int("points", points),
		slog.Int("xp", account.XP),
		slog.Int("level", account.Level),
	)

	return account, nil
}

// RecordActivity は学習活動を記録し、日単位のストリークを更新する。
// 同日2回目以降の活動は何も変更しない。前日から連続していればストリークを伸ばし、
// 途切れていれば1にリセットする。maxStreakは常にstreak以上を維持する。
func (s *Service) RecordActivity(ctx context.Context, accountID string, now time.Time) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		slog.Error("アカウントの取得に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreUnavailableError()
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}

	switch daysBetween(account.LastActivityAt, now) {
	case 0:
		// 同日の活動は冪等
		return account, nil
	case 1:
		account.Streak++
	default:
		account.Streak = 1
	}

	if account.MaxStreak < account.Streak {
		account.MaxStreak = account.Streak
	}
	activityAt := now
	account.LastActivityAt = &activityAt

	if err := s.accountRepo.UpdateProgress(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("学習活動を記録しました",
		slog.String("account_id", accountID),
		slog.Int("streak", account.Streak),
		slog.Int("max_streak", account.MaxStreak),
	)

	return account, nil
}

// daysBetween は最終活動日からの経過日数（日付単位）を返す。
// lastがnilの場合は初回活動としてリセット扱いの-1を返す。
func daysBetween(last *time.Time, now time.Time) int {
	if last == nil {
		return -1
	}
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(nowDay.Sub(lastDay).Hours() / 24)
}
