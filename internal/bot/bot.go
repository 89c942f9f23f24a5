// Package bot connects the Telegram update loop to the verification coordinator. Private chats are
// gated and relayed to the operator group; the operator group drives admin commands.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tb "gopkg.in/tucnak/telebot.v2"

	"relay-gate/internal/notify"
	"relay-gate/internal/verification/domain"
	"relay-gate/internal/verification/service"
)

// handlerTimeout bounds the work done for one update, provider calls included.
const handlerTimeout = 30 * time.Second

const (
	messageWelcome     = "👋 You are verified. Send a message and it will be delivered."
	messageButtonOther = "This button is not for you."
	messageRelayFailed = "Your message could not be delivered, please try again later."
)

// API is the subset of *tb.Bot the relay uses.
type API interface {
	Handle(endpoint interface{}, handler interface{})
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
	Forward(to tb.Recipient, msg tb.Editable, options ...interface{}) (*tb.Message, error)
	Respond(c *tb.Callback, resp ...*tb.CallbackResponse) error
}

// Gate is the verification surface the bot drives.
type Gate interface {
	HandleInbound(ctx context.Context, ev service.InboundEvent) (*service.Decision, error)
	ConfirmButton(ctx context.Context, userID, pressedBy int64) (bool, error)
	MarkVerified(ctx context.Context, userID int64) error
	Revoke(ctx context.Context, userID int64) error
	VerifiedCount(ctx context.Context) (int, error)
}

// SettingsWriter persists operator-changed settings.
type SettingsWriter interface {
	Set(ctx context.Context, key, value string) error
}

// CommandHandler runs an operator command and returns the reply text.
type CommandHandler func(ctx context.Context, b *Bot, m *tb.Message, params []string) string

// Bot routes Telegram updates.
type Bot struct {
	api      API
	gate     Gate
	settings SettingsWriter
	groupID  int64
	log      zerolog.Logger
	commands map[string]CommandHandler
}

// New returns a Bot with the operator commands registered. groupID 0 disables relaying and commands.
func New(api API, gate Gate, settings SettingsWriter, groupID int64, log zerolog.Logger) *Bot {
	b := &Bot{
		api:      api,
		gate:     gate,
		settings: settings,
		groupID:  groupID,
		log:      log,
		commands: make(map[string]CommandHandler),
	}
	registerOperatorCommands(b)
	return b
}

// RegisterCommand binds an operator-group command (without the leading slash).
func (b *Bot) RegisterCommand(command string, f CommandHandler) {
	b.commands[command] = f
}

// Register installs the update handlers on the API.
func (b *Bot) Register() {
	for _, endpoint := range []string{tb.OnText, tb.OnPhoto, tb.OnDocument, tb.OnSticker, tb.OnVoice, tb.OnVideo} {
		b.api.Handle(endpoint, b.OnMessage)
	}
	b.api.Handle(tb.OnCallback, b.OnCallback)
}

// OnMessage handles one message from any chat.
func (b *Bot) OnMessage(m *tb.Message) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if m.Private() {
		b.onPrivate(ctx, m)
		return
	}
	if b.groupID != 0 && m.Chat.ID == b.groupID {
		b.onOperator(ctx, m)
	}
}

func (b *Bot) onPrivate(ctx context.Context, m *tb.Message) {
	userID := int64(m.Sender.ID)
	ev := service.InboundEvent{UserID: userID, Text: m.Text, Start: isStart(m.Text)}
	d, err := b.gate.HandleInbound(ctx, ev)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("inbound gate failed")
	}
	if d == nil {
		return
	}
	b.log.Debug().Int64("user_id", userID).Str("action", d.Action.String()).Msg("inbound decision")

	if d.Action == service.ActionForward {
		if ev.Start {
			b.reply(m, messageWelcome)
			return
		}
		b.relay(m)
		return
	}
	if d.Reply != "" {
		b.reply(m, d.Reply)
	}
}

func (b *Bot) relay(m *tb.Message) {
	if b.groupID == 0 {
		return
	}
	if _, err := b.api.Forward(tb.ChatID(b.groupID), m); err != nil {
		b.log.Warn().Err(err).Int64("user_id", int64(m.Sender.ID)).Msg("relay to operator group failed")
		b.reply(m, messageRelayFailed)
	}
}

// onOperator dispatches commands and delivers replies to relayed messages back to their sender.
func (b *Bot) onOperator(ctx context.Context, m *tb.Message) {
	if strings.HasPrefix(m.Text, "/") && len(m.Text) > 1 {
		fields := strings.Fields(strings.TrimPrefix(m.Text, "/"))
		name := strings.SplitN(fields[0], "@", 2)[0]
		if handler, ok := b.commands[name]; ok {
			b.log.Info().Str("command", name).Int64("operator_id", m.Sender.ID).Msg("operator command")
			b.reply(m, handler(ctx, b, m, fields[1:]))
		}
		return
	}
	if m.ReplyTo == nil || m.ReplyTo.OriginalSender == nil || m.Text == "" {
		return
	}
	to := tb.ChatID(int64(m.ReplyTo.OriginalSender.ID))
	if _, err := b.api.Send(to, m.Text); err != nil {
		b.log.Warn().Err(err).Int64("user_id", m.ReplyTo.OriginalSender.ID).Msg("operator reply not delivered")
		b.reply(m, "Reply not delivered: "+err.Error())
	}
}

// OnCallback handles inline-button presses.
func (b *Bot) OnCallback(c *tb.Callback) {
	if c == nil || c.Sender == nil {
		return
	}
	p, err := notify.DecodeButton(c.Data)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	ok, err := b.gate.ConfirmButton(ctx, p.UserID, int64(c.Sender.ID))
	switch {
	case err != nil:
		b.log.Error().Err(err).Int64("user_id", p.UserID).Msg("button confirmation failed")
		b.respond(c, domain.UserMessage)
	case !ok:
		b.respond(c, messageButtonOther)
	default:
		b.respond(c, service.MessageVerified)
		if _, err := b.api.Send(tb.ChatID(p.UserID), service.MessageVerified); err != nil {
			b.log.Debug().Err(err).Int64("user_id", p.UserID).Msg("verified notice not delivered")
		}
	}
}

func (b *Bot) respond(c *tb.Callback, text string) {
	if err := b.api.Respond(c, &tb.CallbackResponse{Text: text}); err != nil {
		b.log.Debug().Err(err).Msg("callback response failed")
	}
}

func (b *Bot) reply(m *tb.Message, text string) {
	if text == "" {
		return
	}
	if _, err := b.api.Send(m.Chat, text); err != nil {
		b.log.Debug().Err(err).Int64("chat_id", m.Chat.ID).Msg("reply not delivered")
	}
}

func isStart(text string) bool {
	return text == "/start" || strings.HasPrefix(text, "/start ") || strings.HasPrefix(text, "/start@")
}
