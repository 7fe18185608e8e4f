package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/pkg/httpclient"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIBase = "https://api.telegram.org"
	// ChatIDEnvKey is the env file key the refreshed chat id is written under.
	ChatIDEnvKey = "TELEGRAM_CHAT_ID"
)

// TelegramConfig configures the bot client.
type TelegramConfig struct {
	APIBase     string
	Token       string
	ChatID      string
	MaxAttempts int
	// EnvFile, when set, receives the refreshed chat id so restarts pick it up.
	EnvFile string
}

// Telegram posts messages through the Bot API. When a send fails it looks the chat id up
// again through getUpdates and retries, up to MaxAttempts sends in total.
type Telegram struct {
	client httpclient.Client
	cfg    TelegramConfig
	log    logger.Logger

	mu     sync.Mutex
	chatID string
}

// NewTelegram builds a Telegram notifier.
func NewTelegram(client httpclient.Client, cfg TelegramConfig, log logger.Logger) (*Telegram, error) {
	if client == nil {
		return nil, fmt.Errorf("telegram notifier requires an http client")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram notifier requires a bot token")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	return &Telegram{client: client, cfg: cfg, log: logger.Ensure(log), chatID: cfg.ChatID}, nil
}

// ChatID returns the chat id currently in use.
func (t *Telegram) ChatID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chatID
}

// Notify sends text, refreshing the chat id between failed attempts.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	var errs []error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		err := t.send(ctx, t.ChatID(), text)
		if err == nil {
			t.log.DebugObj("telegram message sent", "attempt", attempt)
			return nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		t.log.WarnObj("telegram send failed", "error", err.Error())

		if attempt == t.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		if err := t.refreshChatID(ctx); err != nil {
			errs = append(errs, fmt.Errorf("refresh chat id: %w", err))
			break
		}
	}
	return fmt.Errorf("telegram notify: %w", errors.Join(errs...))
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	Message *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("no chat id")
	}
	resp, err := t.client.PostForm(ctx, t.endpoint("sendMessage"), map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	_, err = decode(resp)
	return err
}

func (t *Telegram) refreshChatID(ctx context.Context) error {
	resp, err := t.client.Get(ctx, t.endpoint("getUpdates"), nil)
	if err != nil {
		return err
	}
	result, err := decode(resp)
	if err != nil {
		return err
	}

	var updates []update
	if err := json.Unmarshal(result, &updates); err != nil {
		return fmt.Errorf("decode updates: %w", err)
	}
	for _, u := range updates {
		if u.Message == nil || u.Message.Chat.ID == 0 {
			continue
		}
		id := strconv.FormatInt(u.Message.Chat.ID, 10)
		t.mu.Lock()
		t.chatID = id
		t.mu.Unlock()
		t.log.InfoObj("telegram chat id refreshed", "chat_id", id)
		if err := t.persistChatID(id); err != nil {
			t.log.WarnObj("persist chat id failed", "error", err.Error())
		}
		return nil
	}
	return fmt.Errorf("no chat found in updates")
}

// persistChatID rewrites the env file with the new chat id, keeping every other key.
func (t *Telegram) persistChatID(id string) error {
	if t.cfg.EnvFile == "" {
		return nil
	}
	env, err := godotenv.Read(t.cfg.EnvFile)
	if err != nil {
		env = map[string]string{}
	}
	env[ChatIDEnvKey] = id
	return godotenv.Write(env, t.cfg.EnvFile)
}

func (t *Telegram) endpoint(method string) string {
	return t.cfg.APIBase + "/bot" + t.cfg.Token + "/" + method
}

func decode(resp httpclient.Response) (json.RawMessage, error) {
	var body apiResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil && resp.StatusCode() == http.StatusOK {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !body.OK {
		if body.Description != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), body.Description)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	return body.Result, nil
}
