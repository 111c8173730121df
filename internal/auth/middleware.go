package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/htmx"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログインの場合、通常リクエストはログイン画面へリダイレクトし、
// htmx リクエストには HX-Redirect でページ遷移を指示します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(sessionKeyUserID).(string)
		if !ok || id == "" {
			m.rejectLogin(c)
			return
		}

		now := m.now()
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		if issuedAt.IsZero() || now.Sub(issuedAt) > m.maxLifetime {
			m.expire(c, "セッションの有効期限が切れました。再度ログインしてください。")
			return
		}
		if lastActive.IsZero() || now.Sub(lastActive) > m.idleTimeout {
			m.expire(c, "しばらく操作がなかったため、再度ログインしてください。")
			return
		}

		account, err := m.loader.Get(c.Request.Context(), id)
		if errors.Is(err, accounts.ErrNotFound) {
			m.expire(c, "")
			return
		}
		if err != nil {
			m.log.Error(c.Request.Context(), "セッションのアカウント取得に失敗しました", "user_id", id, "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		// 別の場所でパスワードが変更されたセッションは無効
		if !m.validHash(session, account) {
			m.log.Info(c.Request.Context(), "認証ハッシュが一致しないセッションを破棄しました", "user_id", id)
			m.expire(c, "")
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		if err := session.Save(); err != nil {
			m.log.Error(c.Request.Context(), "セッションの更新に失敗しました", "user_id", id, "error", err)
		}
		c.Set(ContextAccountKey, account)
		c.Next()
	}
}

// expire はセッションを破棄し、必要なら理由を通知してからログイン画面へ戻します。
func (m *Manager) expire(c *gin.Context, reason string) {
	session := sessions.Default(c)
	session.Clear()
	if reason != "" {
		session.AddFlash(Notice{Level: LevelWarning, Text: reason})
	}
	if err := session.Save(); err != nil {
		m.log.Error(c.Request.Context(), "セッションの削除に失敗しました", "error", err)
	}
	m.rejectLogin(c)
}

func (m *Manager) rejectLogin(c *gin.Context) {
	target := LoginURL + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
	if htmx.IsRequest(c.Request) {
		htmx.Redirect(c.Writer, target)
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// CSRF はセッションの CSRF トークンを用意し、状態を変更するリクエストで照合するミドルウェアです。
// トークンは X-CSRF-Token ヘッダーか csrf_token フォーム項目で受け取ります。
func (m *Manager) CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			m.rejectCSRF(c, "missing")
			return
		}

		for _, received := range []string{c.GetHeader(CSRFHeader), c.PostForm(CSRFField)} {
			if received != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1 {
				c.Next()
				return
			}
		}
		m.rejectCSRF(c, "mismatch")
	}
}

func (m *Manager) rejectCSRF(c *gin.Context, reason string) {
	m.log.Warn(c.Request.Context(), "CSRF 検証に失敗しました", "reason", reason, "path", c.Request.URL.Path)
	c.String(http.StatusForbidden, "CSRF 検証に失敗しました。ページを再読み込みしてからもう一度お試しください。")
	c.Abort()
}

// CSRFToken はセッションの CSRF トークンを返します。未発行なら発行して保存します。
func (m *Manager) CSRFToken(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	if token, ok := session.Get(sessionKeyCSRF).(string); ok && token != "" {
		return token, nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return "", err
	}
	return token, nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
