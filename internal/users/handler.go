// Package users はユーザー登録・ログイン・ログアウト・ホーム・パスワード変更の画面を提供します。
// すべての画面は htmx による部分更新と通常のページ遷移の両方に応答します。
package users

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/auth"
	"github.com/yourusername/hx-accounts/internal/events"
	"github.com/yourusername/hx-accounts/internal/forms"
	"github.com/yourusername/hx-accounts/internal/htmx"
	"github.com/yourusername/hx-accounts/internal/logging"
	"github.com/yourusername/hx-accounts/internal/passwords"
	"github.com/yourusername/hx-accounts/internal/web"
)

// 画面の URL。
const (
	RegisterURL       = "/users/register/"
	LoginURL          = auth.LoginURL
	LogoutURL         = "/users/logout/"
	HomeURL           = "/users/home/"
	ChangePasswordURL = "/users/change-password/"
)

const (
	MsgInvalidLogin = "ユーザー名またはパスワードが正しくありません。"
	MsgServerError  = "サーバーでエラーが発生しました。しばらくしてからもう一度お試しください。"
)

var titles = map[string]string{
	web.PageRegister:       "ユーザー登録",
	web.PageLogin:          "ログイン",
	web.PageHome:           "ホーム",
	web.PageChangePassword: "パスワード変更",
}

// Handler は画面のハンドラーです。
type Handler struct {
	accounts *accounts.Service
	auth     *auth.Manager
	policy   *passwords.Policy
	events   events.Publisher
	log      logging.Logger

	activity      events.Reader
	activityLimit int
}

// Option は Handler の任意設定です。
type Option func(*Handler)

// WithActivity はホーム画面に最近の操作を表示します。
func WithActivity(reader events.Reader, limit int) Option {
	return func(h *Handler) {
		h.activity = reader
		h.activityLimit = limit
	}
}

// NewHandler は Handler を作成します。publisher が nil の場合は操作をログにだけ出力します。
func NewHandler(svc *accounts.Service, manager *auth.Manager, policy *passwords.Policy, publisher events.Publisher, log logging.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(log)
	}
	h := &Handler{
		accounts: svc,
		auth:     manager,
		policy:   policy,
		events:   publisher,
		log:      log.With("component", "users"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes は画面のルートを登録します。
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, LoginURL)
	})

	group := router.Group("/users", varyOnHTMX)
	{
		public := group.Group("", h.auth.CSRF())
		public.GET("/register/", h.Register)
		public.POST("/register/", h.Register)
		public.GET("/login/", h.Login)
		public.POST("/login/", h.Login)

		group.GET("/logout/", h.Logout)

		protected := group.Group("", h.auth.RequireLogin())
		protected.GET("/home/", h.Home)
		protected.GET("/change-password/", h.auth.CSRF(), h.ChangePassword)
		protected.POST("/change-password/", h.auth.CSRF(), h.ChangePassword)
	}
}

// varyOnHTMX はモードごとに応答が異なることをキャッシュに伝えます。
func varyOnHTMX(c *gin.Context) {
	htmx.Vary(c.Writer)
	c.Next()
}

// render は部分更新ならフラグメントだけを、通常リクエストならレイアウト込みの画面を返します。
func (h *Handler) render(c *gin.Context, status int, page string, data web.Page) {
	token, err := h.auth.CSRFToken(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	data.CSRFToken = token
	if data.Account == nil {
		data.Account = auth.CurrentAccount(c)
	}

	if htmx.IsRequest(c.Request) {
		c.HTML(status, web.Fragment(page), data)
		return
	}

	notices, err := h.auth.Notices(c)
	if err != nil {
		h.log.Warn(c.Request.Context(), "通知の取り出しに失敗しました", "error", err)
	}
	data.Notices = notices
	data.Title = titles[page]
	c.HTML(status, page, data)
}

// advance は部分更新の成功時に次の画面を返し、クライアントに通知を表示させます。
func (h *Handler) advance(c *gin.Context, page, url, message string, data web.Page) {
	if err := htmx.ShowMessage(c.Writer, auth.LevelSuccess, message); err != nil {
		h.log.Warn(c.Request.Context(), "通知ヘッダーの設定に失敗しました", "error", err)
	}
	htmx.PushURL(c.Writer, url)
	h.render(c, http.StatusOK, page, data)
}

// invalid は入力エラーを返します。部分更新ではエラー表示だけを画面のメッセージ欄に差し込みます。
func (h *Handler) invalid(c *gin.Context, page, level, title string, errs forms.Errors, data web.Page) {
	if htmx.IsRequest(c.Request) {
		htmx.Retarget(c.Writer, messagesSelector(page), htmx.SwapInnerHTML)
		c.HTML(http.StatusOK, web.ErrorBlock, web.Block{Level: level, Title: title, Items: errs.Items()})
		return
	}
	data.Errors = errs
	h.render(c, http.StatusOK, page, data)
}

// fail は想定外のエラーを記録し、500 を返します。
func (h *Handler) fail(c *gin.Context, err error) {
	h.log.Error(c.Request.Context(), "リクエストの処理に失敗しました", "path", c.Request.URL.Path, "error", err)
	_ = c.Error(err)

	if htmx.IsRequest(c.Request) {
		htmx.Retarget(c.Writer, "#notices", htmx.SwapInnerHTML)
		c.HTML(http.StatusInternalServerError, web.ErrorBlock, web.Block{
			Level: auth.LevelError,
			Title: "エラー：",
			Items: []string{MsgServerError},
		})
		return
	}
	c.String(http.StatusInternalServerError, MsgServerError)
}

// publish は操作を記録します。記録に失敗してもリクエストは失敗させません。
func (h *Handler) publish(c *gin.Context, typ events.Type, accountID, username string) {
	event := events.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		AccountID:  accountID,
		Username:   username,
		RemoteAddr: c.ClientIP(),
		Client:     events.ClientFromUserAgent(c.Request.UserAgent()),
		OccurredAt: time.Now().UTC(),
	}
	if err := h.events.Publish(c.Request.Context(), event); err != nil {
		h.log.Warn(c.Request.Context(), "操作の記録に失敗しました", "type", string(typ), "username", username, "error", err)
	}
}

func (h *Handler) recent(ctx context.Context, account *accounts.Account) []events.Event {
	if h.activity == nil || account == nil || h.activityLimit <= 0 {
		return nil
	}
	items, err := h.activity.Recent(ctx, account.ID, h.activityLimit)
	if err != nil {
		h.log.Warn(ctx, "アクティビティの取得に失敗しました", "account_id", account.ID, "error", err)
		return nil
	}
	return items
}

func messagesSelector(page string) string {
	return "#" + strings.ReplaceAll(page, "_", "-") + "-messages"
}
