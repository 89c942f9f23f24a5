// Package notify delivers verification prompts to users and warnings to the operator group.
package notify

import (
	"context"
	"errors"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	tb "gopkg.in/tucnak/telebot.v2"
)

// ActionVerifyButton is the callback action carried by the confirmation button.
const ActionVerifyButton = "verify_button"

const (
	buttonPrompt   = "Please click the button to verify."
	buttonLabel    = "Click to verify"
	linkPrompt     = "Please complete the verification by clicking the button below.\nAfter completing verification, send a message to check your verification status."
	linkLabel      = "🔐 Complete Verification"
	verifiedNotice = "✅ Verification successful! You can now send messages."
)

// ErrNotButtonPayload is returned by DecodeButton for callback data of another shape.
var ErrNotButtonPayload = errors.New("notify: callback is not a verify button")

// Notifier is the operator side channel. Delivery is best-effort; callers never observe failures.
type Notifier interface {
	NotifyOperator(ctx context.Context, text string)
}

// Presenter shows verification UI to a user.
type Presenter interface {
	PresentButton(ctx context.Context, userID int64) error
	PresentLink(ctx context.Context, userID int64, url string) error
	NotifyVerified(ctx context.Context, userID int64) error
}

// Sender is the subset of *tb.Bot used for outbound messages.
type Sender interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
}

// ButtonPayload is the callback data of the confirmation button.
type ButtonPayload struct {
	Action string `json:"action"`
	UserID int64  `json:"user_id"`
}

// EncodeButton returns the callback data for userID's confirmation button.
func EncodeButton(userID int64) string {
	b, _ := jsoniter.Marshal(ButtonPayload{Action: ActionVerifyButton, UserID: userID})
	return string(b)
}

// DecodeButton parses callback data produced by EncodeButton.
func DecodeButton(data string) (ButtonPayload, error) {
	var p ButtonPayload
	if err := jsoniter.UnmarshalFromString(data, &p); err != nil {
		return ButtonPayload{}, ErrNotButtonPayload
	}
	if p.Action != ActionVerifyButton {
		return ButtonPayload{}, ErrNotButtonPayload
	}
	return p, nil
}

// TelegramNotifier sends operator warnings to a group chat.
type TelegramNotifier struct {
	sender  Sender
	groupID int64
	log     zerolog.Logger
}

// NewTelegramNotifier returns a notifier for groupID. A zero groupID yields a NopNotifier.
func NewTelegramNotifier(sender Sender, groupID int64, log zerolog.Logger) Notifier {
	if sender == nil || groupID == 0 {
		return NopNotifier{}
	}
	return &TelegramNotifier{sender: sender, groupID: groupID, log: log}
}

func (n *TelegramNotifier) NotifyOperator(ctx context.Context, text string) {
	if _, err := n.sender.Send(tb.ChatID(n.groupID), "⚠️ "+text); err != nil {
		n.log.Debug().Err(err).Int64("group_id", n.groupID).Msg("operator notification dropped")
	}
}

// NopNotifier discards operator notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyOperator(ctx context.Context, text string) {}

// TelegramPresenter renders prompts as inline keyboards in the user's private chat.
type TelegramPresenter struct {
	sender Sender
}

func NewTelegramPresenter(sender Sender) *TelegramPresenter {
	return &TelegramPresenter{sender: sender}
}

func (p *TelegramPresenter) PresentButton(ctx context.Context, userID int64) error {
	markup := &tb.ReplyMarkup{InlineKeyboard: [][]tb.InlineButton{{
		{Text: buttonLabel, Data: EncodeButton(userID)},
	}}}
	_, err := p.sender.Send(tb.ChatID(userID), buttonPrompt, markup)
	return err
}

func (p *TelegramPresenter) PresentLink(ctx context.Context, userID int64, url string) error {
	markup := &tb.ReplyMarkup{InlineKeyboard: [][]tb.InlineButton{{
		{Text: linkLabel, URL: url},
	}}}
	_, err := p.sender.Send(tb.ChatID(userID), linkPrompt, markup)
	return err
}

func (p *TelegramPresenter) NotifyVerified(ctx context.Context, userID int64) error {
	_, err := p.sender.Send(tb.ChatID(userID), verifiedNotice)
	return err
}
