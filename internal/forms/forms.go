// Package forms はフォーム送信の束縛と検証を行います。
package forms

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shoenig/go-conceal"

	"github.com/yourusername/hx-accounts/internal/passwords"
)

const (
	MsgRequired           = "このフィールドは必須です。"
	MsgInvalidEmail       = "有効なメールアドレスを入力してください。"
	MsgInvalidUsername    = "有効なユーザー名を入力してください。半角英数字と @/./+/-/_ のみ使用できます。"
	MsgPasswordMismatch   = "確認用パスワードが一致しません。"
	MsgUsernameTaken      = "同じユーザー名が既に登録済みです。"
	MsgOldPasswordInvalid = "元のパスワードが間違っています。もう一度入力してください。"
	MsgInvalid            = "入力値が正しくありません。"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

var setupOnce sync.Once

// setupValidator は gin のバリデータにフォーム名の解決と username ルールを登録します。
func setupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
	})
}

// bind は POST フォームを構造体に写し、normalize の後に検証します。
func bind(r *http.Request, dst any, normalize func()) Errors {
	setupValidator()

	var errs Errors
	if err := r.ParseForm(); err != nil {
		errs.Add(NonFieldErrors, MsgInvalid)
		return errs
	}
	if err := binding.MapFormWithTag(dst, r.PostForm, "form"); err != nil {
		errs.Add(NonFieldErrors, MsgInvalid)
		return errs
	}
	if normalize != nil {
		normalize()
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs.Add(NonFieldErrors, MsgInvalid)
			return errs
		}
		for _, fe := range verrs {
			errs.Add(fe.Field(), message(fe))
		}
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "email":
		return MsgInvalidEmail
	case "username":
		return MsgInvalidUsername
	case "max":
		return fmt.Sprintf("%s 文字以下で入力してください。", fe.Param())
	default:
		return MsgInvalid
	}
}

// RegisterForm はユーザー登録フォームです。
type RegisterForm struct {
	Username  string `form:"username" binding:"required,max=150,username"`
	Email     string `form:"email" binding:"required,max=254,email"`
	Password1 string `form:"password1" binding:"required"`
	Password2 string `form:"password2" binding:"required"`
}

// BindRegister は登録フォームを束縛し、確認用パスワードとパスワードポリシーを検証します。
func BindRegister(r *http.Request, policy *passwords.Policy) (*RegisterForm, Errors) {
	var f RegisterForm
	errs := bind(r, &f, func() {
		f.Username = strings.TrimSpace(f.Username)
		f.Email = strings.TrimSpace(f.Email)
	})

	if f.Password1 != "" && f.Password2 != "" {
		if f.Password1 != f.Password2 {
			errs.Add("password2", MsgPasswordMismatch)
		} else if policy != nil {
			attrs := passwords.UserAttributes{Username: f.Username, Email: f.Email}
			for _, v := range policy.Validate(f.Password2, attrs) {
				errs.Add("password2", v.Message)
			}
		}
	}
	return &f, errs
}

// Password は登録するパスワードを返します。
func (f *RegisterForm) Password() *conceal.Text {
	return conceal.New(f.Password1)
}

// Values は再表示用の秘匿不要な入力値です。
func (f *RegisterForm) Values() map[string]string {
	return map[string]string{
		"username": f.Username,
		"email":    f.Email,
	}
}

// LoginForm はログインフォームです。
type LoginForm struct {
	Username string `form:"username" binding:"required,max=150"`
	Password string `form:"password" binding:"required"`
}

// BindLogin はログインフォームを束縛します。
func BindLogin(r *http.Request) (*LoginForm, Errors) {
	var f LoginForm
	errs := bind(r, &f, func() {
		f.Username = strings.TrimSpace(f.Username)
	})
	return &f, errs
}

// Secret はパスワードを返します。
func (f *LoginForm) Secret() *conceal.Text {
	return conceal.New(f.Password)
}

// Values は再表示用の秘匿不要な入力値です。
func (f *LoginForm) Values() map[string]string {
	return map[string]string{"username": f.Username}
}

// ChangePasswordForm はパスワード変更フォームです。
type ChangePasswordForm struct {
	OldPassword  string `form:"old_password" binding:"required"`
	NewPassword1 string `form:"new_password1" binding:"required"`
	NewPassword2 string `form:"new_password2" binding:"required"`
}

// BindChangePassword はパスワード変更フォームを束縛し、確認用パスワードとポリシーを検証します。
// 元のパスワードの照合は呼び出し側で行います。
func BindChangePassword(r *http.Request, policy *passwords.Policy, attrs passwords.UserAttributes) (*ChangePasswordForm, Errors) {
	var f ChangePasswordForm
	errs := bind(r, &f, nil)

	if f.NewPassword1 != "" && f.NewPassword2 != "" {
		if f.NewPassword1 != f.NewPassword2 {
			errs.Add("new_password2", MsgPasswordMismatch)
		} else if policy != nil {
			for _, v := range policy.Validate(f.NewPassword2, attrs) {
				errs.Add("new_password2", v.Message)
			}
		}
	}
	return &f, errs
}

// Old は元のパスワードを返します。
func (f *ChangePasswordForm) Old() *conceal.Text {
	return conceal.New(f.OldPassword)
}

// New は新しいパスワードを返します。
func (f *ChangePasswordForm) New() *conceal.Text {
	return conceal.New(f.NewPassword1)
}
