package loki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func captureServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q, want /loki/api/v1/push", r.URL.Path)
		}
		if err := jsoniter.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	server := captureServer(t, http.StatusNoContent, &got)

	raw := []byte(`{"event_id":"e1","user_id":42,"event_type":"verified","mode":"math","created_at":"2025-12-27T12:00:00Z"}`)
	if err := NewClient(server.URL+"/").PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	want := map[string]string{"job": "relay-gate", "event_type": "verified", "mode": "math"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	if _, ok := s.Stream["user_id"]; ok {
		t.Error("user_id must not be a label")
	}
	wantTS := time.Date(2025, 12, 27, 12, 0, 0, 0, time.UTC).UnixNano()
	if s.Values[0][0] != strconv.FormatInt(wantTS, 10) {
		t.Errorf("timestamp = %s, want %d", s.Values[0][0], wantTS)
	}
	if s.Values[0][1] != string(raw) {
		t.Errorf("line = %s, want raw event", s.Values[0][1])
	}
}

func TestPushEventJSON_UnparseableStillPushed(t *testing.T) {
	var got PushRequest
	server := captureServer(t, http.StatusNoContent, &got)

	if err := NewClient(server.URL).PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams[0].Stream) != 1 || got.Streams[0].Values[0][1] != "not json" {
		t.Errorf("stream = %+v", got.Streams[0])
	}
}

func TestPushEvent_Errors(t *testing.T) {
	if err := NewClient("").PushEvent(context.Background(), time.Now(), "x", nil); err == nil {
		t.Error("empty base URL should fail")
	}
	var got PushRequest
	server := captureServer(t, http.StatusBadRequest, &got)
	if err := NewClient(server.URL).PushEvent(context.Background(), time.Now(), "x", map[string]string{"mode": "a b"}); err == nil {
		t.Error("non-2xx should fail")
	}
	if got.Streams[0].Stream["mode"] != "a_b" {
		t.Errorf("sanitized label = %q, want a_b", got.Streams[0].Stream["mode"])
	}
}
