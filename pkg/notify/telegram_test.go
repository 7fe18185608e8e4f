package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/pkg/httpclient"
	"github.com/joho/godotenv"
)

type botServer struct {
	mu        sync.Mutex
	validChat string
	sends     []string
	updates   int
}

func (b *botServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage"):
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			chat := r.PostForm.Get("chat_id")
			b.sends = append(b.sends, chat)
			if chat != b.validChat {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":{}}`))
		case strings.HasSuffix(r.URL.Path, "/bottoken/getUpdates"):
			b.updates++
			w.Write([]byte(`{"ok":true,"result":[{"update_id":1},{"update_id":2,"message":{"chat":{"id":` + b.validChat + `}}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestTelegram(t *testing.T, srv *httptest.Server, chatID, envFile string, attempts int) *Telegram {
	t.Helper()
	tg, err := NewTelegram(httpclient.NewRestyClient(time.Second), TelegramConfig{
		APIBase:     srv.URL,
		Token:       "token",
		ChatID:      chatID,
		MaxAttempts: attempts,
		EnvFile:     envFile,
	}, nil)
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	return tg
}

func TestTelegramSendsWithConfiguredChat(t *testing.T) {
	bot := &botServer{validChat: "100"}
	srv := httptest.NewServer(bot.handler(t))
	defer srv.Close()

	tg := newTestTelegram(t, srv, "100", "", 2)
	if err := tg.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(bot.sends) != 1 || bot.updates != 0 {
		t.Fatalf("sends=%v updates=%d", bot.sends, bot.updates)
	}
}

func TestTelegramRefreshesChatIDAndPersistsIt(t *testing.T) {
	bot := &botServer{validChat: "555"}
	srv := httptest.NewServer(bot.handler(t))
	defer srv.Close()

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("TELEGRAM_BOT_TOKEN=token\nTELEGRAM_CHAT_ID=1\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	tg := newTestTelegram(t, srv, "1", envFile, 2)
	if err := tg.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := strings.Join(bot.sends, ","); got != "1,555" {
		t.Fatalf("sends = %s", got)
	}
	if tg.ChatID() != "555" {
		t.Fatalf("ChatID = %s", tg.ChatID())
	}

	env, err := godotenv.Read(envFile)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	if env[ChatIDEnvKey] != "555" || env["TELEGRAM_BOT_TOKEN"] != "token" {
		t.Fatalf("env file = %v", env)
	}
}

func TestTelegramStopsAfterMaxAttempts(t *testing.T) {
	bot := &botServer{validChat: "555"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bot.mu.Lock()
		defer bot.mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/getUpdates") {
			bot.updates++
			w.Write([]byte(`{"ok":true,"result":[{"message":{"chat":{"id":9}}}]}`))
			return
		}
		bot.sends = append(bot.sends, "x")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := newTestTelegram(t, srv, "1", "", 3)
	if err := tg.Notify(context.Background(), "hello"); err == nil {
		t.Fatalf("expected failure")
	}
	if len(bot.sends) != 3 || bot.updates != 2 {
		t.Fatalf("sends=%d updates=%d, want 3 and 2", len(bot.sends), bot.updates)
	}
}

func TestNewTelegramRequiresToken(t *testing.T) {
	if _, err := NewTelegram(httpclient.NewRestyClient(time.Second), TelegramConfig{}, nil); err == nil {
		t.Fatalf("expected error without token")
	}
}
