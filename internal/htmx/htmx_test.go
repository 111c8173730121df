package htmx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"plain", nil, false},
		{"htmx", map[string]string{HeaderRequest: "true"}, true},
		{"boosted", map[string]string{HeaderRequest: "true", HeaderBoosted: "true"}, false},
		{"other value", map[string]string{HeaderRequest: "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, IsRequest(r))
		})
	}
}

func TestRetarget(t *testing.T) {
	w := httptest.NewRecorder()
	Retarget(w, "#login-messages", SwapInnerHTML)
	assert.Equal(t, "#login-messages", w.Header().Get(HeaderRetarget))
	assert.Equal(t, "innerHTML", w.Header().Get(HeaderReswap))

	w = httptest.NewRecorder()
	Retarget(w, "#main", "")
	assert.Empty(t, w.Header().Get(HeaderReswap))
}

func TestShowMessage(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, ShowMessage(w, "success", "ログインしました。"))

	var got map[string]Message
	require.NoError(t, json.Unmarshal([]byte(w.Header().Get(HeaderTrigger)), &got))
	assert.Equal(t, Message{Message: "ログインしました。", Type: "success"}, got[EventShowMessage])
}

func TestShowMessageHeaderIsASCII(t *testing.T) {
	texts := []string{
		"パスワードを変更しました。",
		"アカウントを作成しました。ようこそ、café 🦦 さん！",
	}
	for _, text := range texts {
		w := httptest.NewRecorder()
		require.NoError(t, ShowMessage(w, "success", text))

		header := w.Header().Get(HeaderTrigger)
		for i := 0; i < len(header); i++ {
			require.Less(t, header[i], byte(0x80), "non-ASCII byte at %d in %q", i, header)
		}

		var got map[string]Message
		require.NoError(t, json.Unmarshal([]byte(header), &got))
		assert.Equal(t, text, got[EventShowMessage].Message)
	}
}

func TestShowMessageEscapesKana(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, ShowMessage(w, "info", "あ"))
	assert.Equal(t, `{"showMessage":{"message":"\u3042","type":"info"}}`, w.Header().Get(HeaderTrigger))
}

func TestTriggerUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	err := Trigger(w, "bad", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, w.Header().Get(HeaderTrigger))
}

func TestPushURLAndRedirect(t *testing.T) {
	w := httptest.NewRecorder()
	PushURL(w, "/users/home/")
	Redirect(w, "/users/login/")
	Vary(w)
	assert.Equal(t, "/users/home/", w.Header().Get(HeaderPushURL))
	assert.Equal(t, "/users/login/", w.Header().Get(HeaderRedirect))
	assert.Equal(t, HeaderRequest, w.Header().Get("Vary"))
}
