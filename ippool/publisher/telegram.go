package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"cfip_nexus/internal/shared/types"
)

// Telegram rejects document captions longer than this.
const maxCaptionRunes = 1024

// TelegramNotifier sends the artifact as a document with the summary as its
// caption.
type TelegramNotifier struct {
	config types.TelegramConf
	http   *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(cfg types.TelegramConf) *TelegramNotifier {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Notify uploads the artifact via sendDocument.
func (t *TelegramNotifier) Notify(ctx context.Context, p Payload, summary string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("chat_id", t.config.ChatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	if err := mw.WriteField("caption", truncateRunes(summary, maxCaptionRunes)); err != nil {
		return fmt.Errorf("write caption: %w", err)
	}
	fw, err := mw.CreateFormFile("document", p.FileName)
	if err != nil {
		return fmt.Errorf("create document part: %w", err)
	}
	if _, err := fw.Write(p.Artifact); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", strings.TrimRight(t.config.APIBase, "/"), t.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
