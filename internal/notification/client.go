// Package notification はメール通知連携機能を提供する。
// メール配信APIの呼び出しと新規登録通知の組み立てを含む。
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

const (
	// defaultEndpoint はメール配信APIのデフォルトエンドポイント。
	defaultEndpoint = "https://api.mail.example.com/v1/messages"
	// sendsPerSecond はメール配信APIへの送信ペース上限。
	sendsPerSecond = 5
)

// Config はメール通知クライアントの設定。
type Config struct {
	Endpoint string // 空の場合はdefaultEndpointを使用
	APIKey   string
	// OperatorEmail は新規登録を通知する運用者（管理者）のメールアドレス。
	OperatorEmail string
}

// Client はメール配信APIのクライアント。
// 全メソッドはベストエフォートで、失敗はログに記録するのみで呼び出し元へは伝播しない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	limiter    *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		limiter:    rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
	}
}

// sendRequest はメール配信APIへのリクエストボディ。
type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendWelcome は新規登録ユーザーへウェルカムメールを送信する。
// 成功可否をboolで返す。失敗してもアカウント作成の結果には影響しない。
func (c *Client) SendWelcome(ctx context.Context, email, name, accountID string) bool {
	body := fmt.Sprintf(
		"%s さん、CodeQuestへようこそ！\n学習を始めるにはサインインしてください。\n（アカウントID: %s）",
		name, accountID,
	)
	if err := c.send(ctx, sendRequest{
		To:      email,
		Subject: "CodeQuestへようこそ",
		Body:    body,
	}); err != nil {
		c.logger.Error("ウェルカムメールの送信に失敗しました",
			slog.String("email", email),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// NotifyOperator は運用者へ新規登録を通知する。
// 新規アカウントが運用者自身の場合は呼び出し元でスキップされる想定。
func (c *Client) NotifyOperator(ctx context.Context, name, email, accountID string) {
	if c.config.OperatorEmail == "" {
		return
	}
	body := fmt.Sprintf(
		"新規ユーザーが登録されました。\n名前: %s\nメール: %s\nアカウントID: %s",
		name, email, accountID,
	)
	if err := c.send(ctx, sendRequest{
		To:      c.config.OperatorEmail,
		Subject: "【CodeQuest】新規ユーザー登録",
		Body:    body,
	}); err != nil {
		c.logger.Error("運用者への通知に失敗しました",
			slog.String("email", email),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// send はメール配信APIを1回呼び出す。
// 送信ペースはレートリミッターで制御する。
func (c *Client) send(ctx context.Context, reqBody sendRequest) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("送信ペース待機中にキャンセルされました: %w", err)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("メール配信APIがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}
