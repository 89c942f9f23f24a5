package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	tb "gopkg.in/tucnak/telebot.v2"
)

type sent struct {
	to      string
	what    interface{}
	options []interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *fakeSender) Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{to: to.Recipient(), what: what, options: options})
	if s.err != nil {
		return nil, s.err
	}
	return &tb.Message{}, nil
}

func TestButtonPayload(t *testing.T) {
	data := EncodeButton(42)
	if data != `{"action":"verify_button","user_id":42}` {
		t.Errorf("EncodeButton = %s", data)
	}
	p, err := DecodeButton(data)
	if err != nil || p.UserID != 42 {
		t.Errorf("DecodeButton = (%+v, %v)", p, err)
	}
	for _, bad := range []string{"", "{", `{"action":"other","user_id":1}`} {
		if _, err := DecodeButton(bad); !errors.Is(err, ErrNotButtonPayload) {
			t.Errorf("DecodeButton(%q) error = %v, want ErrNotButtonPayload", bad, err)
		}
	}
}

func TestNewTelegramNotifier_NoGroupIsNop(t *testing.T) {
	if _, ok := NewTelegramNotifier(&fakeSender{}, 0, zerolog.Nop()).(NopNotifier); !ok {
		t.Error("zero group id should give a NopNotifier")
	}
	if _, ok := NewTelegramNotifier(nil, -100, zerolog.Nop()).(NopNotifier); !ok {
		t.Error("nil sender should give a NopNotifier")
	}
}

func TestTelegramNotifier_SendsToGroupAndSwallowsErrors(t *testing.T) {
	s := &fakeSender{err: errors.New("bot was kicked")}
	n := NewTelegramNotifier(s, -100123, zerolog.Nop())

	n.NotifyOperator(context.Background(), "TGuard API URL or Key not configured")

	if len(s.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(s.sent))
	}
	if s.sent[0].to != "-100123" {
		t.Errorf("recipient = %q, want -100123", s.sent[0].to)
	}
	if s.sent[0].what != "⚠️ TGuard API URL or Key not configured" {
		t.Errorf("text = %v", s.sent[0].what)
	}
}

func TestTelegramPresenter_Button(t *testing.T) {
	s := &fakeSender{}
	p := NewTelegramPresenter(s)
	if err := p.PresentButton(context.Background(), 7); err != nil {
		t.Fatalf("PresentButton: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].to != "7" {
		t.Fatalf("sent = %+v", s.sent)
	}
	markup, ok := s.sent[0].options[0].(*tb.ReplyMarkup)
	if !ok {
		t.Fatalf("option = %T, want *tb.ReplyMarkup", s.sent[0].options[0])
	}
	btn := markup.InlineKeyboard[0][0]
	if btn.Data != EncodeButton(7) {
		t.Errorf("button data = %q, want %q", btn.Data, EncodeButton(7))
	}
}

func TestTelegramPresenter_Link(t *testing.T) {
	s := &fakeSender{}
	p := NewTelegramPresenter(s)
	if err := p.PresentLink(context.Background(), 7, "https://tguard.example/v/t"); err != nil {
		t.Fatalf("PresentLink: %v", err)
	}
	markup := s.sent[0].options[0].(*tb.ReplyMarkup)
	if got := markup.InlineKeyboard[0][0].URL; got != "https://tguard.example/v/t" {
		t.Errorf("button url = %q", got)
	}
}

func TestTelegramPresenter_ReturnsSendError(t *testing.T) {
	s := &fakeSender{err: errors.New("blocked")}
	if err := NewTelegramPresenter(s).NotifyVerified(context.Background(), 7); err == nil {
		t.Error("NotifyVerified should return the send error")
	}
}
