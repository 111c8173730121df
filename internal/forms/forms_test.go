package forms

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hx-accounts/internal/passwords"
)

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestBindRegisterValid(t *testing.T) {
	form, errs := BindRegister(postForm(url.Values{
		"username":  {"  alice  "},
		"email":     {"alice@example.com"},
		"password1": {"tangerine-Otter-42"},
		"password2": {"tangerine-Otter-42"},
	}), passwords.DefaultPolicy(8))

	require.False(t, errs.Any(), "unexpected errors: %v", errs.Items())
	assert.Equal(t, "alice", form.Username)
	assert.Equal(t, "tangerine-Otter-42", form.Password().Unveil())
	assert.Equal(t, map[string]string{"username": "alice", "email": "alice@example.com"}, form.Values())
}

func TestBindRegisterMissingFields(t *testing.T) {
	_, errs := BindRegister(postForm(url.Values{}), passwords.DefaultPolicy(8))

	require.Len(t, errs, 4)
	for _, field := range []string{"username", "email", "password1", "password2"} {
		assert.Equal(t, []string{MsgRequired}, errs.For(field), field)
	}
	assert.Equal(t, "ユーザー名: "+MsgRequired, errs.Items()[0])
}

func TestBindRegisterFormatErrors(t *testing.T) {
	_, errs := BindRegister(postForm(url.Values{
		"username":  {"alice smith!"},
		"email":     {"not-an-email"},
		"password1": {"tangerine-Otter-42"},
		"password2": {"tangerine-Otter-42"},
	}), passwords.DefaultPolicy(8))

	assert.Equal(t, []string{MsgInvalidUsername}, errs.For("username"))
	assert.Equal(t, []string{MsgInvalidEmail}, errs.For("email"))
	assert.False(t, errs.Has("password2"))
}

func TestBindRegisterUsernameTooLong(t *testing.T) {
	_, errs := BindRegister(postForm(url.Values{
		"username":  {strings.Repeat("a", 151)},
		"email":     {"a@example.com"},
		"password1": {"tangerine-Otter-42"},
		"password2": {"tangerine-Otter-42"},
	}), nil)

	assert.Equal(t, []string{"150 文字以下で入力してください。"}, errs.For("username"))
}

func TestBindRegisterPasswordMismatch(t *testing.T) {
	_, errs := BindRegister(postForm(url.Values{
		"username":  {"alice"},
		"email":     {"alice@example.com"},
		"password1": {"tangerine-Otter-42"},
		"password2": {"tangerine-Otter-43"},
	}), passwords.DefaultPolicy(8))

	// a mismatch short-circuits the policy checks
	assert.Equal(t, []string{MsgPasswordMismatch}, errs.For("password2"))
	assert.Len(t, errs, 1)
}

func TestBindRegisterPolicyViolations(t *testing.T) {
	_, errs := BindRegister(postForm(url.Values{
		"username":  {"alice"},
		"email":     {"alice@example.com"},
		"password1": {"1234567"},
		"password2": {"1234567"},
	}), passwords.DefaultPolicy(8))

	assert.Equal(t, []string{
		"このパスワードは短すぎます。最低 8 文字以上必要です。",
		"このパスワードは一般的すぎます。",
		"このパスワードは数字しか使われていません。",
	}, errs.For("password2"))
}

func TestBindLogin(t *testing.T) {
	form, errs := BindLogin(postForm(url.Values{"username": {" bob "}, "password": {"pw"}}))
	require.False(t, errs.Any())
	assert.Equal(t, "bob", form.Username)
	assert.Equal(t, "pw", form.Secret().Unveil())

	_, errs = BindLogin(postForm(url.Values{"username": {"bob"}}))
	assert.Equal(t, []string{MsgRequired}, errs.For("password"))
	assert.False(t, errs.Has("username"))

	_, errs = BindLogin(postForm(url.Values{"username": {"   "}, "password": {"pw"}}))
	assert.True(t, errs.Has("username"))
}

func TestBindChangePassword(t *testing.T) {
	attrs := passwords.UserAttributes{Username: "alice", Email: "alice@example.com"}

	form, errs := BindChangePassword(postForm(url.Values{
		"old_password":  {"tangerine-Otter-42"},
		"new_password1": {"plum-Badger-77"},
		"new_password2": {"plum-Badger-77"},
	}), passwords.DefaultPolicy(8), attrs)
	require.False(t, errs.Any(), "unexpected errors: %v", errs.Items())
	assert.Equal(t, "tangerine-Otter-42", form.Old().Unveil())
	assert.Equal(t, "plum-Badger-77", form.New().Unveil())

	_, errs = BindChangePassword(postForm(url.Values{
		"old_password":  {"tangerine-Otter-42"},
		"new_password1": {"alice1234"},
		"new_password2": {"alice1234"},
	}), passwords.DefaultPolicy(8), attrs)
	assert.Equal(t, []string{"このパスワードは ユーザー名 と似すぎています。"}, errs.For("new_password2"))

	_, errs = BindChangePassword(postForm(url.Values{
		"new_password1": {"plum-Badger-77"},
		"new_password2": {"plum-Badger-78"},
	}), passwords.DefaultPolicy(8), attrs)
	assert.Equal(t, []string{MsgRequired}, errs.For("old_password"))
	assert.Equal(t, []string{MsgPasswordMismatch}, errs.For("new_password2"))
}

func TestErrorsPrepend(t *testing.T) {
	var errs Errors
	errs.Add("new_password2", MsgPasswordMismatch)
	errs.Prepend("old_password", MsgOldPasswordInvalid)

	assert.Equal(t, []string{
		"元のパスワード: " + MsgOldPasswordInvalid,
		"新しいパスワード（確認用）: " + MsgPasswordMismatch,
	}, errs.Items())
}
