package bot

import (
	"context"
	"fmt"
	"strconv"

	tb "gopkg.in/tucnak/telebot.v2"

	settingsdomain "relay-gate/internal/settings/domain"
	"relay-gate/internal/verification/domain"
)

func registerOperatorCommands(b *Bot) {
	b.RegisterCommand("verify", verifyUser)
	b.RegisterCommand("revoke", revokeUser)
	b.RegisterCommand("captcha", setCaptcha)
	b.RegisterCommand("tguard", setTGuard)
	b.RegisterCommand("stats", stats)
}

func verifyUser(ctx context.Context, b *Bot, m *tb.Message, params []string) string {
	userID, ok := parseUserID(params)
	if !ok {
		return "Invalid verify params. Format:\n/verify <user_id>"
	}
	if err := b.gate.MarkVerified(ctx, userID); err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("manual verify failed")
		return "Failed: " + err.Error()
	}
	return fmt.Sprintf("User %d verified.", userID)
}

func revokeUser(ctx context.Context, b *Bot, m *tb.Message, params []string) string {
	userID, ok := parseUserID(params)
	if !ok {
		return "Invalid revoke params. Format:\n/revoke <user_id>"
	}
	if err := b.gate.Revoke(ctx, userID); err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("revoke failed")
		return "Failed: " + err.Error()
	}
	return fmt.Sprintf("User %d revoked.", userID)
}

func setCaptcha(ctx context.Context, b *Bot, m *tb.Message, params []string) string {
	if len(params) != 1 {
		return "Invalid captcha params. Format:\n/captcha <math|button|tguard>"
	}
	mode, err := domain.ParseMode(params[0])
	if err != nil {
		return "Unknown captcha mode: " + params[0]
	}
	if err := b.settings.Set(ctx, settingsdomain.KeyCaptcha, string(mode)); err != nil {
		b.log.Error().Err(err).Msg("captcha setting write failed")
		return "Failed: " + err.Error()
	}
	return "Captcha mode set to " + string(mode) + "."
}

func setTGuard(ctx context.Context, b *Bot, m *tb.Message, params []string) string {
	if len(params) != 2 {
		return "Invalid tguard params. Format:\n/tguard <api_url> <api_key>"
	}
	if err := b.settings.Set(ctx, settingsdomain.KeyTGuardURL, params[0]); err != nil {
		b.log.Error().Err(err).Msg("tguard url write failed")
		return "Failed: " + err.Error()
	}
	if err := b.settings.Set(ctx, settingsdomain.KeyTGuardKey, params[1]); err != nil {
		b.log.Error().Err(err).Msg("tguard key write failed")
		return "Failed: " + err.Error()
	}
	return "TGuard API configured."
}

func stats(ctx context.Context, b *Bot, m *tb.Message, params []string) string {
	n, err := b.gate.VerifiedCount(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("verified count failed")
		return "Failed: " + err.Error()
	}
	return fmt.Sprintf("Verified users: %d", n)
}

func parseUserID(params []string) (int64, bool) {
	if len(params) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(params[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
