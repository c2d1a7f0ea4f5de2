package sink

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "parkpin/pkg/logx"
)

// Telegram delivers notifications as messages to a fixed chat. Unlike a
// desktop daemon, messages survive the device being asleep, which makes
// this the background-capable sink of choice on headless setups.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	// Offline construction skips the startup getMe round trip: a network
	// outage at boot degrades delivery (surfaced through the queue's retry
	// path on the first Send) instead of aborting the daemon.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, chatID: cfg.ChatID, log: log}, nil
}

func (t *Telegram) Show(ctx context.Context, n Notification) error {
	_ = ctx // telebot manages its own request timeouts

	text := n.Title
	if n.Body != "" {
		text += "\n" + n.Body
	}
	_, err := t.bot.Send(tele.ChatID(t.chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		// 403 means the user blocked the bot; no retry can fix that.
		if strings.Contains(err.Error(), "Forbidden") {
			return errors.Join(ErrDenied, err)
		}
		return err
	}
	t.log.Debug("telegram notification sent", logx.Int64("chat_id", t.chatID), logx.String("tag", n.Tag))
	return nil
}
