package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/tranminh/seibot/internal/chat"
)

const startMessage = "Hi! Ask me anything about the SEI blockchain.\n" +
	"When a table helps, I'll render it as a PNG image."

const resetMessage = "Conversation history for this chat has been cleared."

// Responder is the assistant surface the bot drives.
type Responder interface {
	Respond(ctx context.Context, sessionID, message string) (*chat.Reply, error)
	Reset(ctx context.Context, sessionID string) error
}

// Sender is the outbound Bot API slice, separated for tests.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
}

// update is the subset of a Telegram update the bot consumes.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Bot routes webhook updates to the assistant and delivers replies.
type Bot struct {
	sender    Sender
	responder Responder

	// parseMode is "html" or "markdownv2"; anything else sends plain text.
	parseMode string
	logger    *slog.Logger

	// Telegram delivers updates on concurrent connections and redelivers
	// anything not acked in time, so updates for one chat can arrive
	// while an earlier one is still being answered. Session commits are
	// read-modify-write; overlapping responds for the same chat would
	// lose turns. chatLocks serializes handling per chat ID.
	mu        sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

// NewBot wires a bot.
func NewBot(sender Sender, responder Responder, parseMode string, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:    sender,
		responder: responder,
		parseMode: strings.ToLower(parseMode),
		logger:    logger.With("component", "bot"),
		chatLocks: make(map[int64]*sync.Mutex),
	}
}

// chatLock returns the serialization mutex for a chat, creating it on
// first use. Locks are never removed; the map grows with the number of
// distinct chats, which is bounded in practice.
func (b *Bot) chatLock(chatID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		b.chatLocks[chatID] = l
	}
	return l
}

// Handler returns the webhook http.Handler. Mount it at the configured
// webhook path.
func (b *Bot) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var up update
		if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}

		if up.Message != nil && up.Message.Text != "" {
			b.handleMessage(r.Context(), up.Message.Chat.ID, up.Message.Text)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})
}

func (b *Bot) handleMessage(ctx context.Context, chatID int64, text string) {
	lock := b.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	sessionID := strconv.FormatInt(chatID, 10)
	logger := b.logger.With("chat_id", chatID)

	switch command(text) {
	case "start":
		b.sendText(ctx, chatID, startMessage, logger)
		return
	case "reset":
		if err := b.responder.Reset(ctx, sessionID); err != nil {
			logger.Error("reset failed", "error", err)
		}
		b.sendText(ctx, chatID, resetMessage, logger)
		return
	}

	reply, err := b.responder.Respond(ctx, sessionID, text)
	if err != nil {
		logger.Error("respond failed", "error", err)
		b.sendText(ctx, chatID, "Sorry, something went wrong answering that. Please try again.", logger)
		return
	}

	// Photos first; a failed photo never blocks the text.
	for _, path := range reply.Images {
		if err := b.sender.SendPhoto(ctx, chatID, path, "Table"); err != nil {
			logger.Warn("sending photo failed", "path", path, "error", err)
		}
	}
	if reply.Text != "" {
		b.sendText(ctx, chatID, reply.Text, logger)
	}
}

// sendText applies the configured parse mode and delivers, retrying as
// plain text if the formatted variant is rejected.
func (b *Bot) sendText(ctx context.Context, chatID int64, text string, logger *slog.Logger) {
	formatted := text
	mode := ""
	switch b.parseMode {
	case "html":
		if converted, err := ToHTML(text); err == nil {
			formatted, mode = converted, "HTML"
		}
	case "markdownv2":
		formatted, mode = ToMarkdownV2(text), "MarkdownV2"
	}

	err := b.sender.SendMessage(ctx, chatID, formatted, mode)
	if err != nil && mode != "" {
		logger.Warn("formatted send rejected, retrying plain", "mode", mode, "error", err)
		err = b.sender.SendMessage(ctx, chatID, text, "")
	}
	if err != nil {
		logger.Error("sending message failed", "error", err)
	}
}

// command extracts a leading /command name, without any @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
