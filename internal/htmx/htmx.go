// Package htmx は htmx のリクエスト判定とレスポンスヘッダーを扱います。
package htmx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf16"
)

const (
	HeaderRequest  = "HX-Request"
	HeaderBoosted  = "HX-Boosted"
	HeaderRetarget = "HX-Retarget"
	HeaderReswap   = "HX-Reswap"
	HeaderTrigger  = "HX-Trigger"
	HeaderPushURL  = "HX-Push-Url"
	HeaderRedirect = "HX-Redirect"
)

// SwapInnerHTML は対象要素の中身を置き換えるスワップ指定です。
const SwapInnerHTML = "innerHTML"

// EventShowMessage はクライアントに通知を表示させるイベント名です。
const EventShowMessage = "showMessage"

// IsRequest は部分更新を求めるリクエストかを返します。
// hx-boost によるリクエストはページ全体を差し替えるため通常のリクエストとして扱います。
func IsRequest(r *http.Request) bool {
	if r.Header.Get(HeaderRequest) != "true" {
		return false
	}
	return r.Header.Get(HeaderBoosted) != "true"
}

// Vary はキャッシュがモードごとに応答を分けるよう Vary を付与します。
func Vary(w http.ResponseWriter) {
	w.Header().Add("Vary", HeaderRequest)
}

// Retarget はスワップ先とスワップ方法を上書きします。
func Retarget(w http.ResponseWriter, selector, swap string) {
	w.Header().Set(HeaderRetarget, selector)
	if swap != "" {
		w.Header().Set(HeaderReswap, swap)
	}
}

// Trigger はクライアント側イベントを detail 付きで発火させます。
// ブラウザはヘッダー値を Latin-1 として読むため、ASCII 以外は \uXXXX で送ります。
func Trigger(w http.ResponseWriter, event string, detail any) error {
	payload, err := json.Marshal(map[string]any{event: detail})
	if err != nil {
		return fmt.Errorf("encode %s trigger: %w", event, err)
	}
	w.Header().Set(HeaderTrigger, asciiJSON(payload))
	return nil
}

// asciiJSON は JSON 中の非 ASCII 文字をエスケープします。
// json.Marshal の出力では非 ASCII 文字は文字列リテラル内にしか現れません。
func asciiJSON(payload []byte) string {
	var b strings.Builder
	b.Grow(len(payload))
	for _, r := range string(payload) {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}

// Message は showMessage イベントの detail です。
type Message struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ShowMessage は通知表示イベントを設定します。
func ShowMessage(w http.ResponseWriter, level, text string) error {
	return Trigger(w, EventShowMessage, Message{Message: text, Type: level})
}

// PushURL はブラウザの履歴に URL を積みます。
func PushURL(w http.ResponseWriter, url string) {
	w.Header().Set(HeaderPushURL, url)
}

// Redirect はクライアントにページ全体の遷移を指示します。
func Redirect(w http.ResponseWriter, url string) {
	w.Header().Set(HeaderRedirect, url)
}
