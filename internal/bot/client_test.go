package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var req struct {
			Message   string `json:"message"`
			CompanyID int64  `json:"company_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Message != "help" || req.CompanyID != 7 {
			t.Errorf("unexpected request payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "try restarting"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	reply, err := c.Reply(context.Background(), 7, "help")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply != "try restarting" {
		t.Errorf("reply = %q, want %q", reply, "try restarting")
	}
}

func TestClientReplyNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Reply(context.Background(), 7, "help"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestClientReplyRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, time.Minute)
	start := time.Now()
	_, err := c.Reply(ctx, 7, "help")
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("context deadline did not bound the call")
	}
}

func TestClientReplyBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Reply(context.Background(), 7, "help"); err == nil {
		t.Fatal("expected decode error")
	}
}
