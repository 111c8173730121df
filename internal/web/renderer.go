// Package web は画面テンプレートの描画を担当します。
package web

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/gin-gonic/gin/render"

	"github.com/yourusername/hx-accounts/internal/accounts"
	"github.com/yourusername/hx-accounts/internal/auth"
	"github.com/yourusername/hx-accounts/internal/events"
	"github.com/yourusername/hx-accounts/internal/forms"
)

//go:embed templates/*.html
var templateFS embed.FS

// 画面名。フラグメントは "<画面名>_content" で参照します。
const (
	PageRegister       = "register"
	PageLogin          = "login"
	PageHome           = "home"
	PageChangePassword = "change_password"

	// ErrorBlock は部分更新で返すエラー表示です。
	ErrorBlock = "error_block"
)

var pages = []string{PageRegister, PageLogin, PageHome, PageChangePassword}

// Fragment は画面の本文テンプレート名を返します。
func Fragment(page string) string {
	return page + "_content"
}

// Page は画面テンプレートに渡すデータです。
type Page struct {
	Title     string
	CSRFToken string
	Account   *accounts.Account
	Notices   []auth.Notice
	Values    map[string]string
	Errors    forms.Errors
	Next      string
	Activity  []events.Event

	// RefreshNav は部分更新でナビゲーションと CSRF トークンを out-of-band で差し替えます。
	RefreshNav bool
}

// Block は部分更新で返すエラー表示のデータです。
type Block struct {
	Level string
	Title string
	Items []string
}

// Renderer は gin の HTMLRender 実装です。
// 画面名ならレイアウト込みで、フラグメント名なら本文だけを、それ以外のテンプレート名は単体で描画します。
type Renderer struct {
	base      *template.Template
	pages     map[string]*template.Template
	fragments map[string]*template.Template
}

var _ render.HTMLRender = (*Renderer)(nil)

// NewRenderer は埋め込みテンプレートを読み込みます。
func NewRenderer() (*Renderer, error) {
	base, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := &Renderer{
		base:      base,
		pages:     make(map[string]*template.Template, len(pages)),
		fragments: make(map[string]*template.Template, len(pages)),
	}
	for _, page := range pages {
		if base.Lookup(Fragment(page)) == nil {
			return nil, fmt.Errorf("template %s is not defined", Fragment(page))
		}
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone templates for %s: %w", page, err)
		}
		if _, err := t.New("content").Parse(`{{template "` + Fragment(page) + `" .}}`); err != nil {
			return nil, fmt.Errorf("compose %s: %w", page, err)
		}
		if _, err := t.New("partial").Parse(`{{template "content" .}}{{if .RefreshNav}}{{template "nav" .}}{{end}}`); err != nil {
			return nil, fmt.Errorf("compose %s partial: %w", page, err)
		}
		r.pages[page] = t
		r.fragments[Fragment(page)] = t
	}
	return r, nil
}

// Instance は gin から呼ばれ、描画対象を決定します。
func (r *Renderer) Instance(name string, data any) render.Render {
	if t, ok := r.pages[name]; ok {
		return render.HTML{Template: t, Name: "layout", Data: data}
	}
	if t, ok := r.fragments[name]; ok {
		return render.HTML{Template: t, Name: "partial", Data: data}
	}
	return render.HTML{Template: r.base, Name: name, Data: data}
}

var funcs = template.FuncMap{
	"alertClass": alertClass,
	"datetime":   datetime,
	"eventLabel": eventLabel,
}

func alertClass(level string) string {
	switch level {
	case auth.LevelSuccess:
		return "alert-success"
	case auth.LevelWarning:
		return "alert-warning"
	case auth.LevelError:
		return "alert-danger"
	default:
		return "alert-info"
	}
}

func datetime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Local().Format("2006/01/02 15:04")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Local().Format("2006/01/02 15:04")
	default:
		return ""
	}
}

func eventLabel(t events.Type) string {
	switch t {
	case events.TypeRegistered:
		return "ユーザー登録"
	case events.TypeLoggedIn:
		return "ログイン"
	case events.TypeLoginFailed:
		return "ログイン失敗"
	case events.TypeLoggedOut:
		return "ログアウト"
	case events.TypePasswordChanged:
		return "パスワード変更"
	default:
		return string(t)
	}
}
