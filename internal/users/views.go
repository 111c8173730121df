package users

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/auth"
	"github.com/yourusername/hx-accounts/internal/events"
	"github.com/yourusername/hx-accounts/internal/forms"
	"github.com/yourusername/hx-accounts/internal/htmx"
	"github.com/yourusername/hx-accounts/internal/passwords"
	"github.com/yourusername/hx-accounts/internal/web"
)

// Register はユーザー登録画面です。
func (h *Handler) Register(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		h.render(c, http.StatusOK, web.PageRegister, web.Page{})
		return
	}

	ctx := c.Request.Context()
	form, errs := forms.BindRegister(c.Request, h.policy)
	if !errs.Any() {
		account, err := h.accounts.Register(ctx, accounts.Registration{
			Username: form.Username,
			Email:    form.Email,
			Password: form.Password(),
		})
		switch {
		case errors.Is(err, accounts.ErrUsernameTaken):
			errs.Add("username", forms.MsgUsernameTaken)
		case err != nil:
			h.fail(c, err)
			return
		default:
			h.registered(c, account)
			return
		}
	}

	h.invalid(c, web.PageRegister, auth.LevelError, "登録に失敗しました：", errs, web.Page{Values: form.Values()})
}

func (h *Handler) registered(c *gin.Context, account *accounts.Account) {
	h.log.Info(c.Request.Context(), "ユーザー登録が完了しました", "username", account.Username, "account_id", account.ID)
	h.publish(c, events.TypeRegistered, account.ID, account.Username)

	message := fmt.Sprintf("アカウントを作成しました。ようこそ、%s さん！", account.Username)
	if htmx.IsRequest(c.Request) {
		h.advance(c, web.PageLogin, LoginURL, message, web.Page{
			Values: map[string]string{"username": account.Username},
		})
		return
	}

	h.auth.AddNotice(c, auth.LevelSuccess, message)
	if err := h.auth.Save(c); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, LoginURL)
}

// Login はログイン画面です。ログイン後は安全な next があればそこへ、なければホームへ遷移します。
func (h *Handler) Login(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		h.render(c, http.StatusOK, web.PageLogin, web.Page{Next: auth.SafeNext(c.Query("next"))})
		return
	}

	ctx := c.Request.Context()
	next := auth.SafeNext(c.PostForm("next"))
	form, errs := forms.BindLogin(c.Request)
	data := web.Page{Values: form.Values(), Next: next}
	if errs.Any() {
		h.invalid(c, web.PageLogin, auth.LevelWarning, "入力内容を確認してください：", errs, data)
		return
	}

	account, err := h.accounts.Authenticate(ctx, form.Username, form.Secret())
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		h.log.Warn(ctx, "ログインに失敗しました", "username", form.Username, "client_ip", c.ClientIP())
		h.publish(c, events.TypeLoginFailed, "", form.Username)

		errs.Add(forms.NonFieldErrors, MsgInvalidLogin)
		h.invalid(c, web.PageLogin, auth.LevelError, "エラー：", errs, data)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.accounts.RecordLogin(ctx, account); err != nil {
		h.log.Warn(ctx, "最終ログイン日時の更新に失敗しました", "account_id", account.ID, "error", err)
	}

	message := fmt.Sprintf("おかえりなさい、%s さん！", account.Username)
	partial := htmx.IsRequest(c.Request)
	// ホーム以外へ戻る場合は画面全体を読み直すため、通知はセッションで渡す
	redirectTo := HomeURL
	if next != "" {
		redirectTo = next
	}
	if !partial || redirectTo != HomeURL {
		h.auth.AddNotice(c, auth.LevelSuccess, message)
	}
	if err := h.auth.Login(c, account); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info(ctx, "ログインしました", "username", account.Username, "account_id", account.ID)
	h.publish(c, events.TypeLoggedIn, account.ID, account.Username)

	switch {
	case partial && redirectTo == HomeURL:
		// ナビゲーションと CSRF トークンはログイン前のままなので out-of-band で差し替える
		h.advance(c, web.PageHome, HomeURL, message, web.Page{
			Account:    account,
			Activity:   h.recent(ctx, account),
			RefreshNav: true,
		})
	case partial:
		htmx.Redirect(c.Writer, redirectTo)
		c.Status(http.StatusNoContent)
	default:
		c.Redirect(http.StatusFound, redirectTo)
	}
}

// Logout はセッションを破棄してログイン画面へ戻します。未ログインでも同じ応答です。
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	var account *accounts.Account
	if id := h.auth.UserID(c); id != "" {
		loaded, err := h.accounts.Get(ctx, id)
		if err != nil && !errors.Is(err, accounts.ErrNotFound) {
			h.log.Warn(ctx, "ログアウトするアカウントの取得に失敗しました", "account_id", id, "error", err)
		}
		account = loaded
	}

	h.auth.AddNotice(c, auth.LevelSuccess, "ログアウトしました。")
	if err := h.auth.Logout(c); err != nil {
		h.fail(c, err)
		return
	}

	if account != nil {
		h.log.Info(ctx, "ログアウトしました", "username", account.Username, "account_id", account.ID)
		h.publish(c, events.TypeLoggedOut, account.ID, account.Username)
	}
	c.Redirect(http.StatusFound, LoginURL)
}

// Home はログイン中のユーザーのホーム画面です。
func (h *Handler) Home(c *gin.Context) {
	account := auth.CurrentAccount(c)
	h.render(c, http.StatusOK, web.PageHome, web.Page{
		Account:  account,
		Activity: h.recent(c.Request.Context(), account),
	})
}

// ChangePassword はパスワード変更画面です。変更後もログイン状態は維持されます。
func (h *Handler) ChangePassword(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		h.render(c, http.StatusOK, web.PageChangePassword, web.Page{})
		return
	}

	ctx := c.Request.Context()
	account := auth.CurrentAccount(c)
	attrs := passwords.UserAttributes{Username: account.Username, Email: account.Email}
	form, errs := forms.BindChangePassword(c.Request, h.policy, attrs)

	if form.OldPassword != "" {
		if err := h.accounts.CheckPassword(account, form.Old()); err != nil {
			if !errors.Is(err, accounts.ErrInvalidCredentials) {
				h.fail(c, err)
				return
			}
			errs.Prepend("old_password", forms.MsgOldPasswordInvalid)
		}
	}
	if errs.Any() {
		h.invalid(c, web.PageChangePassword, auth.LevelError, "パスワードの変更に失敗しました：", errs, web.Page{})
		return
	}

	updated, err := h.accounts.SetPassword(ctx, account, form.New())
	if err != nil {
		h.fail(c, err)
		return
	}

	message := "パスワードを変更しました。"
	partial := htmx.IsRequest(c.Request)
	if !partial {
		h.auth.AddNotice(c, auth.LevelSuccess, message)
	}
	if err := h.auth.UpdateSessionHash(c, updated); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info(ctx, "パスワードを変更しました", "username", updated.Username, "account_id", updated.ID)
	h.publish(c, events.TypePasswordChanged, updated.ID, updated.Username)

	if partial {
		h.advance(c, web.PageHome, HomeURL, message, web.Page{
			Account:  updated,
			Activity: h.recent(ctx, updated),
		})
		return
	}
	c.Redirect(http.StatusFound, HomeURL)
}
