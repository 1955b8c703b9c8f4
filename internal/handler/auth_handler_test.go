package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/codequest/internal/model"
)

// mockAccountService は関数フィールドで動作を差し替えられるサインアップサービスのモック。
type mockAccountService struct {
	signupFn func(ctx context.Context, name, email, password string) (*model.Account, bool, error)
}

func (m *mockAccountService) Signup(ctx context.Context, name, email, password string) (*model.Account, bool, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, name, email, password)
	}
	return nil, false, nil
}

// mockAuthService は関数フィールドで動作を差し替えられる認証サービスのモック。
type mockAuthService struct {
	signInFn            func(ctx context.Context, name, email string) (*model.Account, *model.Session, error)
	logoutFn            func(ctx context.Context, sessionID string) error
	getCurrentAccountFn func(ctx context.Context, sessionID string) (*model.Account, error)
}

func (m *mockAuthService) SignIn(ctx context.Context, name, email string) (*model.Account, *model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, name, email)
	}
	return nil, nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if m.getCurrentAccountFn != nil {
		return m.getCurrentAccountFn(ctx, sessionID)
	}
	return nil, nil
}

func newTestAccount() *model.Account {
	return &model.Account{
		ID:               "account-1",
		Email:            "taro@example.com",
		Name:             "taro",
		CredentialDigest: "$2a$10$secretdigest",
		Role:             model.RoleUser,
		XP:               0,
		Level:            1,
		Streak:           0,
		MaxStreak:        0,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
}

func newAuthHandlerForTest(accounts AccountServiceInterface, auth AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(accounts, auth, AuthHandlerConfig{
		CookieSecure:  false,
		SessionMaxAge: 86400,
	})
}

func TestSignup_Success(t *testing.T) {
	accounts := &mockAccountService{
		signupFn: func(ctx context.Context, name, email, password string) (*model.Account, bool, error) {
			return newTestAccount(), true, nil
		},
	}
	h := newAuthHandlerForTest(accounts, &mockAuthService{})

	body := `{"name":"taro","email":"taro@example.com","password":"secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Signup(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp signupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Message == "" {
		t.Error("message should not be empty")
	}
	if !resp.EmailSent {
		t.Error("emailSent = false, want true")
	}
	if resp.User.Email != "taro@example.com" {
		t.Errorf("user.email = %q, want %q", resp.User.Email, "taro@example.com")
	}
	if resp.User.Level != 1 {
		t.Errorf("user.level = %d, want 1", resp.User.Level)
	}
}

// レスポンスボディにパスワードダイジェストが一切含まれないことを確認する。
func TestSignup_NeverLeaksCredentialDigest(t *testing.T) {
	accounts := &mockAccountService{
		signupFn: func(ctx context.Context, name, email, password string) (*model.Account, bool, error) {
			return newTestAccount(), false, nil
		},
	}
	h := newAuthHandlerForTest(accounts, &mockAuthService{})

	body := `{"email":"taro@example.com","password":"secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Signup(rec, req)

	raw := rec.Body.String()
	if strings.Contains(raw, "secretdigest") {
		t.Errorf("response leaks credential digest: %s", raw)
	}
	if strings.Contains(raw, "password") || strings.Contains(raw, "credential") {
		t.Errorf("response should not contain credential fields: %s", raw)
	}
}

func TestSignup_InvalidJSON(t *testing.T) {
	h := newAuthHandlerForTest(&mockAccountService{}, &mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()

	h.Signup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rec, "INVALID_REQUEST")
}

func TestSignup_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "入力検証エラーは400",
			serviceErr: model.NewInvalidInputError("メールアドレスの形式が正しくありません"),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidInput,
		},
		{
			name:       "メールアドレス重複は400",
			serviceErr: model.NewDuplicateAccountError("taro@example.com"),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeDuplicateAccount,
		},
		{
			name:       "ストア障害は一般的な500に変換される",
			serviceErr: model.NewStoreUnavailableError(),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &mockAccountService{
				signupFn: func(ctx context.Context, name, email, password string) (*model.Account, bool, error) {
					return nil, false, tt.serviceErr
				},
			}
			h := newAuthHandlerForTest(accounts, &mockAuthService{})

			body := `{"email":"taro@example.com","password":"secret123"}`
			req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
			rec := httptest.NewRecorder()

			h.Signup(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			assertErrorCode(t, rec, tt.wantCode)
		})
	}
}

func TestSignIn_Success(t *testing.T) {
	account := newTestAccount()
	session := &model.Session{
		ID:        "test-session-id",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	auth := &mockAuthService{
		signInFn: func(ctx context.Context, name, email string) (*model.Account, *model.Session, error) {
			return account, session, nil
		},
	}
	h := newAuthHandlerForTest(&mockAccountService{}, auth)

	body := `{"email":"taro@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.SignIn(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	// セッションCookieの確認
	cookies := rec.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie not set")
	}
	if sessionCookie.Value != "test-session-id" {
		t.Errorf("cookie value = %q, want %q", sessionCookie.Value, "test-session-id")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	var resp signinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.User.ID != account.ID {
		t.Errorf("user.id = %q, want %q", resp.User.ID, account.ID)
	}
}

func TestSignIn_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "入力検証エラーは400",
			serviceErr: model.NewInvalidInputError("メールアドレスは必須です"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "ストア障害は503",
			serviceErr: model.NewStoreUnavailableError(),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuthService{
				signInFn: func(ctx context.Context, name, email string) (*model.Account, *model.Session, error) {
					return nil, nil, tt.serviceErr
				},
			}
			h := newAuthHandlerForTest(&mockAccountService{}, auth)

			body := `{"email":"taro@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(body))
			rec := httptest.NewRecorder()

			h.SignIn(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			// エラー時はCookieを設定しない
			for _, c := range rec.Result().Cookies() {
				if c.Name == sessionCookieName {
					t.Error("session cookie should not be set on error")
				}
			}
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	var loggedOutID string
	auth := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOutID = sessionID
			return nil
		},
	}
	h := newAuthHandlerForTest(&mockAccountService{}, auth)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "session-to-delete"})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if loggedOutID != "session-to-delete" {
		t.Errorf("logged out session = %q, want %q", loggedOutID, "session-to-delete")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie should be cleared with negative MaxAge")
	}
}

func TestLogout_WithoutCookie(t *testing.T) {
	var called bool
	auth := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			called = true
			return nil
		},
	}
	h := newAuthHandlerForTest(&mockAccountService{}, auth)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	// Cookieがなくても204で成功する
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if called {
		t.Error("logout service should not be called without cookie")
	}
}

func TestMe_Success(t *testing.T) {
	account := newTestAccount()
	auth := &mockAuthService{
		getCurrentAccountFn: func(ctx context.Context, sessionID string) (*model.Account, error) {
			if sessionID != "valid-session" {
				t.Errorf("sessionID = %q, want %q", sessionID, "valid-session")
			}
			return account, nil
		},
	}
	h := newAuthHandlerForTest(&mockAccountService{}, auth)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "valid-session"})
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Email != account.Email {
		t.Errorf("email = %q, want %q", resp.Email, account.Email)
	}
}

func TestMe_Unauthorized(t *testing.T) {
	tests := []struct {
		name      string
		setCookie bool
	}{
		{"Cookieなし", false},
		{"無効なセッション", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuthService{
				getCurrentAccountFn: func(ctx context.Context, sessionID string) (*model.Account, error) {
					return nil, model.NewUnauthorizedError()
				},
			}
			h := newAuthHandlerForTest(&mockAccountService{}, auth)

			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.setCookie {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "invalid-session"})
			}
			rec := httptest.NewRecorder()

			h.Me(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

// assertErrorCode はエラーレスポンスボディのcodeフィールドを検証する。
func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantCode string) {
	t.Helper()

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if body.Code != wantCode {
		t.Errorf("error code = %q, want %q", body.Code, wantCode)
	}
}
