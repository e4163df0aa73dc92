package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI serves the handful of Bot API methods the client uses.
type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []map[string]string
	polls    atomic.Int32
	updates  string
	rejectMe bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	w.Header().Set("Content-Type", "application/json")

	switch method {
	case "getMe":
		if f.rejectMe {
			w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Coach","username":"coach_bot"}}`))
	case "sendMessage":
		fields := map[string]string{}
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.sent = append(f.sent, fields)
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	case "getUpdates":
		if f.polls.Add(1) == 1 {
			w.Write([]byte(f.updates))
			return
		}
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"ok":true,"result":[]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func (f *fakeBotAPI) sentFields() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sent...)
}

func newTestClient(t *testing.T, api *fakeBotAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := NewClient(WithToken("123:abc"), WithAPIEndpoint(srv.URL+"/bot%s/%s"))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	_, err := NewClient()
	assert.Error(t, err)
}

func TestNewClientRejectedToken(t *testing.T) {
	srv := httptest.NewServer(&fakeBotAPI{rejectMe: true})
	defer srv.Close()
	_, err := NewClient(WithToken("bad"), WithAPIEndpoint(srv.URL+"/bot%s/%s"))
	assert.Error(t, err)
}

func TestSendMessageRemovesKeyboard(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestClient(t, api)

	require.NoError(t, c.SendMessage(context.Background(), "42", "好的，請問您的年齡是？"))

	sent := api.sentFields()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0]["chat_id"])
	assert.Equal(t, "好的，請問您的年齡是？", sent[0]["text"])
	assert.Contains(t, sent[0]["reply_markup"], `"remove_keyboard":true`)
}

func TestSendKeyboard(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestClient(t, api)

	require.NoError(t, c.SendKeyboard(context.Background(), "42", "請問您的性別是？", []string{"男", "女"}))

	sent := api.sentFields()
	require.Len(t, sent, 1)
	var markup struct {
		Keyboard [][]struct {
			Text string `json:"text"`
		} `json:"keyboard"`
		OneTime bool `json:"one_time_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(sent[0]["reply_markup"]), &markup))
	require.Len(t, markup.Keyboard, 2)
	assert.Equal(t, "男", markup.Keyboard[0][0].Text)
	assert.Equal(t, "女", markup.Keyboard[1][0].Text)
	assert.True(t, markup.OneTime)
}

func TestSendRejectsBadChatID(t *testing.T) {
	c := newTestClient(t, &fakeBotAPI{})
	assert.Error(t, c.SendMessage(context.Background(), "not-a-chat", "hi"))
	assert.Error(t, c.SendKeyboard(context.Background(), "0", "hi", []string{"a"}))
}

func TestUpdatesDeliversTextMessages(t *testing.T) {
	api := &fakeBotAPI{updates: `{"ok":true,"result":[
		{"update_id":1,"message":{"message_id":10,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"男"}},
		{"update_id":2,"message":{"message_id":11,"date":1700000001,"chat":{"id":42,"type":"private"}}},
		{"update_id":3,"edited_message":{"message_id":10,"date":1700000002,"chat":{"id":42,"type":"private"},"text":"女"}}
	]}`}
	c := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := c.Updates(ctx)

	select {
	case msg := <-updates:
		assert.Equal(t, Message{ChatID: 42, MessageID: 10, Text: "男", Date: 1700000000}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no update delivered")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, open := <-updates:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("updates channel not closed after cancel")
		}
	}
}

func TestParseChatID(t *testing.T) {
	id, err := ParseChatID("-100123")
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)

	for _, bad := range []string{"", "0", "abc", "1.5"} {
		_, err := ParseChatID(bad)
		assert.Error(t, err, bad)
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	require.NoError(t, m.SendMessage(context.Background(), "1", "a"))
	require.NoError(t, m.SendKeyboard(context.Background(), "1", "b", []string{"x"}))
	assert.Equal(t, []SentMessage{{ChatID: "1", Body: "a"}, {ChatID: "1", Body: "b", Labels: []string{"x"}}}, m.Sent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := m.Updates(ctx)
	m.Push(Message{ChatID: 1, Text: "hi"})
	assert.Equal(t, "hi", (<-updates).Text)
}
