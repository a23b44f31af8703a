package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"quantsignal/internal/logger"
)

const telegramAttempts = 3

// Telegram 将告警推送至指定群/频道，BotAPI 在第一次发送时才初始化。
type Telegram struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbot.BotAPI
}

type TelegramOption func(*Telegram)

// WithEndpoint overrides the Bot API endpoint format (tgbot.APIEndpoint).
func WithEndpoint(endpoint string) TelegramOption {
	return func(t *Telegram) { t.endpoint = endpoint }
}

func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

func NewTelegram(token, chatID string, opts ...TelegramOption) (*Telegram, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram bot_token 不能为空")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat_id %q: %w", chatID, err)
	}
	t := &Telegram{
		token:    token,
		chatID:   id,
		endpoint: tgbot.APIEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Telegram) Available() bool { return t != nil && t.token != "" && t.chatID != 0 }

func (t *Telegram) botAPI() (*tgbot.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbot.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return bot, nil
}

// Send 发送 Markdown 消息（最多 3 次重试，ctx 取消时立即返回）。
func (t *Telegram) Send(ctx context.Context, title, body string) error {
	if !t.Available() {
		return fmt.Errorf("telegram 配置不完整")
	}
	text := body
	if title = strings.TrimSpace(title); title != "" && !strings.HasPrefix(strings.TrimSpace(body), title) {
		text = "*" + title + "*\n\n" + body
	}
	var lastErr error
	for i := 0; i < telegramAttempts; i++ {
		bot, err := t.botAPI()
		if err == nil {
			msg := tgbot.NewMessage(t.chatID, text)
			msg.ParseMode = tgbot.ModeMarkdown
			if _, err = bot.Send(msg); err == nil {
				return nil
			}
		}
		lastErr = err
		logger.Warnf("telegram send attempt %d/%d failed: %v", i+1, telegramAttempts, err)
		if i == telegramAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return lastErr
}
