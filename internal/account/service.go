// Package account はアカウントの登録（プロビジョニング）のドメインロジックを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hitoshi/codequest/internal/hash"
	"github.com/hitoshi/codequest/internal/model"
	"github.com/hitoshi/codequest/internal/repository"
)

// emailPattern は local@domain.tld 形式のメールアドレスを検証する。
// 空白と@を含まないローカル部・ドメイン部、ドットを含むドメインを要求する。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Notifier は新規登録通知のインターフェース。
// 全呼び出しはベストエフォートであり、失敗がアカウント作成を失敗させてはならない。
type Notifier interface {
	// SendWelcome は新規ユーザーへのウェルカムメールを送信し、成功可否を返す。
	SendWelcome(ctx context.Context, email, name, accountID string) bool
	// NotifyOperator は運用者へ新規登録を通知する。
	NotifyOperator(ctx context.Context, name, email, accountID string)
}

// MetricsRecorder はサインアップ関連メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordSignup(role string)
	RecordDuplicateSignup()
	RecordNotificationFailure()
}

// ServiceConfig はアカウント登録サービスの設定。
type ServiceConfig struct {
	// AdminEmail は管理者権限を付与する唯一のメールアドレス。
	// コードへの直書きを避け、設定値として外部化する。
	AdminEmail string

	// MinPasswordLength はパスワードの最小文字数。0以下の場合は1（非空のみ）を要求する。
	MinPasswordLength int
}

// Service はアカウント登録に関するビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	hasher      hash.Hasher
	notifier    Notifier
	metrics     MetricsRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。
// notifierとmetricsはnil許容（通知・計測なしで動作する）。
func NewService(
	accountRepo repository.AccountRepository,
	hasher hash.Hasher,
	notifier Notifier,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		accountRepo: accountRepo,
		hasher:      hasher,
		notifier:    notifier,
		metrics:     metrics,
		config:      config,
	}
}

// Signup はパスワード付きサインアップを処理する。
// 検証 → 重複確認 → ハッシュ化 → create-if-absent の順で実行し、
// 新規作成時のみ通知を発行する。戻り値のemailSentはウェルカムメールの成否。
func (s *Service) Signup(ctx context.Context, name, email, password string) (*model.Account, bool, error) {
	// 1. 入力検証（ストアへのアクセス前に失敗させる）
	if err := s.validateSignupInput(email, password); err != nil {
		return nil, false, err
	}

	// 2. 重複確認
	existing, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("アカウントの検索に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, false, model.NewStoreUnavailableError()
	}
	if existing != nil {
		if s.metrics != nil {
			s.metrics.RecordDuplicateSignup()
		}
		return nil, false, model.NewDuplicateAccountError(email)
	}

	// 3. パスワードのハッシュ化
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	// 4. アトミックなcreate-if-absent。
	// 重複確認後に並行リクエストが先に作成した場合、一意制約違反が
	// DUPLICATE_ACCOUNTとして返る。
	account, err := s.accountRepo.CreateIfAbsent(ctx, repository.AccountDraft{
		Email:            email,
		Name:             s.deriveName(name, email),
		CredentialDigest: digest,
		Role:             s.deriveRole(email),
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDuplicateAccount {
			if s.metrics != nil {
				s.metrics.RecordDuplicateSignup()
			}
			return nil, false, err
		}
		slog.Error("アカウントの作成に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, false, model.NewStoreUnavailableError()
	}

	slog.Info("新規アカウントを作成しました",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
		slog.String("role", string(account.Role)),
	)
	if s.metrics != nil {
		s.metrics.RecordSignup(string(account.Role))
	}

	// 5. 通知（ベストエフォート。失敗は作成をロールバックしない）
	emailSent := s.dispatchNotifications(ctx, account)

	return account, emailSent, nil
}

// ProvisionPasswordless はパスワードレスサインイン用のcreate-if-absentを行う。
// 既存アカウントがあればそのまま返す（カウンターは変更しない）。
// 未登録の場合はダイジェストなしで作成し、作成時のみ通知を発行する。
// 作成競合で負けた場合は1回だけ再検索し、勝者のアカウントを返す。
func (s *Service) ProvisionPasswordless(ctx context.Context, name, email string) (*model.Account, bool, error) {
	existing, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("アカウントの検索に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, false, model.NewStoreUnavailableError()
	}
	if existing != nil {
		return existing, false, nil
	}

	account, err := s.accountRepo.CreateIfAbsent(ctx, repository.AccountDraft{
		Email: email,
		Name:  s.deriveName(name, email),
		Role:  s.deriveRole(email),
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDuplicateAccount {
			// 並行リクエストが先に作成した。勝者のアカウントを返す。
			winner, findErr := s.accountRepo.FindByEmail(ctx, email)
			if findErr != nil || winner == nil {
				slog.Error("競合後の再検索に失敗しました",
					slog.String("email", email),
				)
				return nil, false, model.NewStoreUnavailableError()
			}
			return winner, false, nil
		}
		slog.Error("アカウントの作成に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, false, model.NewStoreUnavailableError()
	}

	slog.Info("パスワードレスサインインで新規アカウントを作成しました",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)
	if s.metrics != nil {
		s.metrics.RecordSignup(string(account.Role))
	}

	s.dispatchNotifications(ctx, account)

	return account, true, nil
}

// validateSignupInput はサインアップ入力を順に検証する。
func (s *Service) validateSignupInput(email, password string) error {
	if email == "" || password == "" {
		return model.NewInvalidInputError("メールアドレスとパスワードは必須です")
	}
	if !emailPattern.MatchString(email) {
		return model.NewInvalidInputError("メールアドレスの形式が正しくありません")
	}
	minLen := s.config.MinPasswordLength
	if minLen < 1 {
		minLen = 1
	}
	if len(password) < minLen {
		return model.NewInvalidInputError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください", minLen))
	}
	return nil
}

// deriveName は表示名を決定する。未指定の場合はメールアドレスのローカル部を使う。
func (s *Service) deriveName(name, email string) string {
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// deriveRole は設定された管理者メールアドレスとの完全一致で権限を決定する。
// 権限は作成時に固定され、以後自動昇格しない。
func (s *Service) deriveRole(email string) model.Role {
	if s.config.AdminEmail != "" && email == s.config.AdminEmail {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// dispatchNotifications は新規作成通知を発行する。
// ウェルカムメールは成否フラグのために同期で待ち、運用者通知は
// レスポンスをブロックしないようバックグラウンドで送信する。
// 新規アカウントが管理者自身の場合、運用者通知はスキップする。
func (s *Service) dispatchNotifications(ctx context.Context, account *model.Account) bool {
	if s.notifier == nil {
		return false
	}

	emailSent := s.notifier.SendWelcome(ctx, account.Email, account.Name, account.ID)
	if !emailSent && s.metrics != nil {
		s.metrics.RecordNotificationFailure()
	}

	if !account.IsAdmin() {
		// リクエストのキャンセルに引きずられないようコンテキストを切り離す
		notifyCtx := context.WithoutCancel(ctx)
		go s.notifier.NotifyOperator(notifyCtx, account.Name, account.Email, account.ID)
	}

	return emailSent
}
