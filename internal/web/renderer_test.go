package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/auth"
	"github.com/yourusername/hx-accounts/internal/events"
	"github.com/yourusername/hx-accounts/internal/forms"
)

func renderBody(t *testing.T, name string, data any) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r, err := NewRenderer()
	require.NoError(t, err)

	engine := gin.New()
	engine.HTMLRender = r
	engine.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, name, data)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestRenderFullPage(t *testing.T) {
	body := renderBody(t, PageLogin, Page{
		Title:     "ログイン",
		CSRFToken: "tok123",
		Notices:   []auth.Notice{{Level: auth.LevelSuccess, Text: "ログアウトしました。"}},
		Values:    map[string]string{"username": "bob"},
		Next:      "/users/home/",
	})

	assert.Contains(t, body, "<html")
	assert.Contains(t, body, `id="login-messages"`)
	assert.Contains(t, body, `alert-success`)
	assert.Contains(t, body, "ログアウトしました。")
	assert.Contains(t, body, `value="bob"`)
	assert.Contains(t, body, `name="csrf_token" value="tok123"`)
	assert.Contains(t, body, `name="next" value="/users/home/"`)
}

func TestRenderFragment(t *testing.T) {
	var errs forms.Errors
	errs.Add("password2", forms.MsgPasswordMismatch)

	body := renderBody(t, Fragment(PageRegister), Page{
		Values: map[string]string{"username": "alice", "email": "alice@example.com"},
		Errors: errs,
	})

	assert.NotContains(t, body, "<html")
	assert.Contains(t, body, `id="register-messages"`)
	assert.Contains(t, body, forms.MsgPasswordMismatch)
	assert.Contains(t, body, `value="alice@example.com"`)
}

func TestRenderHomeWithActivity(t *testing.T) {
	joined := time.Date(2024, 4, 1, 9, 30, 0, 0, time.Local)
	body := renderBody(t, Fragment(PageHome), Page{
		Account: &accounts.Account{Username: "alice", Email: "alice@example.com", DateJoined: joined},
		Activity: []events.Event{
			{Type: events.TypeLoggedIn, Client: "Firefox/desktop", OccurredAt: joined},
		},
	})

	assert.Contains(t, body, "ようこそ、alice さん")
	assert.Contains(t, body, "2024/04/01 09:30")
	assert.Contains(t, body, "ログイン (Firefox/desktop)")
	assert.NotContains(t, body, "最終ログイン")
}

func TestRenderFragmentRefreshNav(t *testing.T) {
	page := Page{
		CSRFToken: "tok456",
		Account:   &accounts.Account{Username: "alice"},
	}
	body := renderBody(t, Fragment(PageHome), page)
	assert.NotContains(t, body, `id="nav"`)

	page.RefreshNav = true
	body = renderBody(t, Fragment(PageHome), page)
	assert.Contains(t, body, `<nav id="nav" hx-swap-oob="true" data-csrf-token="tok456">`)
	assert.Contains(t, body, "/users/logout/")

	full := renderBody(t, PageHome, Page{Title: "ホーム", CSRFToken: "tok789", Account: page.Account})
	assert.Contains(t, full, `<nav id="nav" data-csrf-token="tok789">`)
}

func TestRenderErrorBlock(t *testing.T) {
	body := renderBody(t, ErrorBlock, Block{
		Level: auth.LevelError,
		Title: "登録に失敗しました：",
		Items: []string{"ユーザー名: このフィールドは必須です。", "メールアドレス: このフィールドは必須です。"},
	})

	assert.NotContains(t, body, "<html")
	assert.Contains(t, body, "alert-danger")
	assert.Contains(t, body, "<li>ユーザー名: このフィールドは必須です。</li>")
}

func TestRenderEscapesInput(t *testing.T) {
	body := renderBody(t, Fragment(PageLogin), Page{Values: map[string]string{"username": `"><script>`}})
	assert.NotContains(t, body, "<script>")
}
