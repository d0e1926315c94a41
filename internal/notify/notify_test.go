package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordSender struct {
	name  string
	err   error
	calls []string
}

func (r *recordSender) Send(_ context.Context, title, message string) error {
	r.calls = append(r.calls, title+"|"+message)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func TestMessageRender(t *testing.T) {
	m := Message{Fields: map[string]string{"reward": "3.5", "episode": "2"}}
	if got := m.Render(); got != "episode: 2\nreward: 3.5" {
		t.Fatalf("render = %q", got)
	}
}

func TestNotifierFilters(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventEpisodeFailed, " "}, slog.Default())

	if err := n.Notify(context.Background(), Message{Event: EventEpisodeFinished, Title: "done"}); err != nil {
		t.Fatal(err)
	}
	if len(s.calls) != 0 {
		t.Fatalf("filtered event delivered: %v", s.calls)
	}
	if err := n.Notify(context.Background(), Message{Event: EventEpisodeFailed, Title: "failed"}); err != nil {
		t.Fatal(err)
	}
	if len(s.calls) != 1 {
		t.Fatalf("calls = %v", s.calls)
	}
}

func TestNotifierJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordSender{name: "bad", err: boom}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.Notify(context.Background(), Message{Event: EventRunFinished, Title: "t"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(good.calls) != 1 {
		t.Fatal("second sender skipped after first failed")
	}
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	if n.Enabled() {
		t.Fatal("nil notifier enabled")
	}
	if err := n.Notify(context.Background(), Message{}); err != nil {
		t.Fatal(err)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "tok", "42")
	if err := s.Send(context.Background(), "Run", "body"); err != nil {
		t.Fatal(err)
	}
	if path != "/bottok/sendMessage" || got["chat_id"] != "42" || got["text"] != "*Run*\nbody" {
		t.Fatalf("path=%s payload=%v", path, got)
	}
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v", err)
	}
}
