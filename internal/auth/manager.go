// Package auth はセッションによるログイン状態と CSRF 保護を提供します。
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/shoenig/go-conceal"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/config"
	"github.com/yourusername/hx-accounts/internal/logging"
)

const (
	SessionCookieName = "hxa_session"

	sessionKeyUserID     = "auth_user_id"
	sessionKeyAuthHash   = "auth_hash"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	// CSRFHeader と CSRFField のどちらかでトークンを受け取ります。
	CSRFHeader = "X-CSRF-Token"
	CSRFField  = "csrf_token"

	// LoginURL は未ログイン時の遷移先です。
	LoginURL = "/users/login/"
)

// ContextAccountKey は、ハンドラー間でログイン中のアカウントを共有するためのキーです。
const ContextAccountKey = "auth.account"

// AccountLoader はセッションのユーザー ID からアカウントを取得します。
type AccountLoader interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
}

// Manager はログイン状態と CSRF トークンを管理します。
type Manager struct {
	secret      *conceal.Text
	maxLifetime time.Duration
	idleTimeout time.Duration
	secure      bool
	loader      AccountLoader
	log         logging.Logger
	now         func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, loader AccountLoader, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		secret:      conceal.New(cfg.SessionSecret),
		maxLifetime: time.Duration(cfg.SessionMaxAgeMinutes) * time.Minute,
		idleTimeout: time.Duration(cfg.SessionIdleMinutes) * time.Minute,
		secure:      cfg.GinMode == gin.ReleaseMode,
		loader:      loader,
		log:         log.With("component", "auth"),
		now:         time.Now,
	}
}

// CookieOptions はセッションクッキーの属性です。
func (m *Manager) CookieOptions() sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(m.maxLifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login はセッションを作り直し、アカウントをログイン状態にします。
// 直前に積まれた通知は引き継ぎます。
func (m *Manager) Login(c *gin.Context, account *accounts.Account) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate csrf token: %w", err)
	}

	session := sessions.Default(c)
	pending := session.Flashes()
	session.Clear()
	for _, n := range pending {
		session.AddFlash(n)
	}

	now := m.now()
	session.Set(sessionKeyUserID, account.ID)
	session.Set(sessionKeyAuthHash, m.authHash(account))
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	c.Set(ContextAccountKey, account)
	return nil
}

// UserID はセッションに保存されたユーザー ID を返します。未ログインなら空です。
// 有効期限や認証ハッシュは検証しません。
func (m *Manager) UserID(c *gin.Context) string {
	id, _ := sessions.Default(c).Get(sessionKeyUserID).(string)
	return id
}

// Logout はセッションを破棄します。直前に積まれた通知は残します。
func (m *Manager) Logout(c *gin.Context) error {
	session := sessions.Default(c)
	pending := session.Flashes()
	session.Clear()
	for _, n := range pending {
		session.AddFlash(n)
	}
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// UpdateSessionHash はパスワード変更後もセッションを有効に保ちます。
func (m *Manager) UpdateSessionHash(c *gin.Context, account *accounts.Account) error {
	session := sessions.Default(c)
	session.Set(sessionKeyAuthHash, m.authHash(account))
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.Set(ContextAccountKey, account)
	return nil
}

// CurrentAccount は RequireLogin が読み込んだアカウントを返します。
func CurrentAccount(c *gin.Context) *accounts.Account {
	v, ok := c.Get(ContextAccountKey)
	if !ok {
		return nil
	}
	account, _ := v.(*accounts.Account)
	return account
}

// Save は積まれた変更をクッキーに書き込みます。
func (m *Manager) Save(c *gin.Context) error {
	if err := sessions.Default(c).Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// authHash はパスワードハッシュから導いたセッション照合用の値です。
// パスワードが変わると既存のセッションは一致しなくなります。
func (m *Manager) authHash(account *accounts.Account) string {
	mac := hmac.New(sha256.New, []byte(m.secret.Unveil()))
	mac.Write([]byte("session-auth-hash:"))
	mac.Write([]byte(account.PasswordHash))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *Manager) validHash(session sessions.Session, account *accounts.Account) bool {
	stored, _ := session.Get(sessionKeyAuthHash).(string)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(m.authHash(account))) == 1
}

// SafeNext はログイン後の遷移先として安全な同一オリジンのパスだけを返します。
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
