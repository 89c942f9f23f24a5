package service

import (
	"context"

	"relay-gate/internal/verification/domain"
)

// Action tells the relay what to do with an inbound user action.
type Action int

const (
	// ActionForward relays the message to the operator group.
	ActionForward Action = iota
	// ActionChallenge means a new challenge was issued; Challenge is set.
	ActionChallenge
	// ActionVerified means the message was a correct math answer.
	ActionVerified
	// ActionWrongAnswer means the message was an incorrect math answer.
	ActionWrongAnswer
	// ActionAwaitExternal means the external session is still pending.
	ActionAwaitExternal
	// ActionUnavailable means verification could not be started.
	ActionUnavailable
)

func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionChallenge:
		return "challenge"
	case ActionVerified:
		return "verified"
	case ActionWrongAnswer:
		return "wrong_answer"
	case ActionAwaitExternal:
		return "await_external"
	case ActionUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// User-facing replies.
const (
	MessageVerified      = "✅ Verification successful! You can now send messages."
	MessageWrongAnswer   = "❌ Incorrect answer, please try again."
	MessageAwaitExternal = "Verification is not completed yet. Finish it with the button above, then send a message again."
	MessageMathPrompt    = "Please answer to continue: "
)

// InboundEvent is one private-chat action by a user.
type InboundEvent struct {
	UserID int64
	Text   string
	// Start is set for the /start command, which always re-issues a math challenge.
	Start bool
}

// Decision is the outcome of HandleInbound. Reply is the text to send back to the user, if any.
type Decision struct {
	Action    Action
	Challenge *domain.Challenge
	Reply     string
}

// HandleInbound gates one inbound action. Verified users are forwarded; everyone else is moved
// through the challenge flow of the configured mode. Classified failures yield ActionUnavailable
// with the generic user message. An error is returned only for store failures, alongside an
// ActionUnavailable decision.
func (c *Coordinator) HandleInbound(ctx context.Context, ev InboundEvent) (*Decision, error) {
	verified, err := c.IsVerified(ctx, ev.UserID)
	if err != nil {
		return unavailable(), err
	}
	if verified {
		return &Decision{Action: ActionForward}, nil
	}

	mode, err := c.configuredMode(ctx)
	if err != nil {
		if domain.KindOf(err) != domain.KindUnknown {
			return unavailable(), nil
		}
		return unavailable(), err
	}

	switch mode {
	case domain.ModeExternal:
		res, err := c.Resolve(ctx, ev.UserID)
		if err != nil {
			return unavailable(), err
		}
		switch res {
		case domain.ResolutionVerified:
			return &Decision{Action: ActionForward}, nil
		case domain.ResolutionPending:
			return &Decision{Action: ActionAwaitExternal, Reply: MessageAwaitExternal}, nil
		}
	case domain.ModeMath:
		if !ev.Start {
			_, pending, err := c.cache.Get(ctx, domain.CaptchaKey(ev.UserID))
			if err != nil {
				c.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("math challenge read failed")
				return unavailable(), nil
			}
			if pending {
				ok, err := c.VerifyAnswer(ctx, ev.UserID, ev.Text)
				if err != nil {
					return unavailable(), err
				}
				if ok {
					return &Decision{Action: ActionVerified, Reply: MessageVerified}, nil
				}
				return &Decision{Action: ActionWrongAnswer, Reply: MessageWrongAnswer}, nil
			}
		}
	}
	return c.challenge(ctx, ev.UserID, mode)
}

func (c *Coordinator) challenge(ctx context.Context, userID int64, mode domain.Mode) (*Decision, error) {
	ch, err := c.IssueMode(ctx, userID, mode)
	if err != nil {
		if domain.KindOf(err) != domain.KindUnknown {
			return unavailable(), nil
		}
		return unavailable(), err
	}
	d := &Decision{Action: ActionChallenge, Challenge: ch}
	if ch.Mode == domain.ModeMath {
		d.Reply = MessageMathPrompt + ch.Prompt
	}
	return d, nil
}

func unavailable() *Decision {
	return &Decision{Action: ActionUnavailable, Reply: domain.UserMessage}
}
