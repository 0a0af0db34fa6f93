package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgketchum/Landsat578/internal/retrieval"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
	colorAmber = 16753920

	// Discord rejects embed descriptions above 4096 characters.
	maxDescription = 4000
)

// Discord posts to webhooks. An empty URL disables that kind of message.
type Discord struct {
	ErrorURL   string
	SuccessURL string
	Client     *http.Client
}

func (d *Discord) Enabled() bool {
	return d != nil && (d.ErrorURL != "" || d.SuccessURL != "")
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	if d == nil || d.ErrorURL == "" {
		return nil
	}
	return d.post(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) SendSuccess(ctx context.Context, successMessage string) error {
	if d == nil || d.SuccessURL == "" {
		return nil
	}
	return d.post(ctx, d.SuccessURL, DiscordEmbed{
		Title:       "✅ Success Notification",
		Description: successMessage,
		Color:       colorGreen,
	})
}

// SendBatch reports a download batch. Batches with failures go to the error
// webhook and list the failed scenes.
func (d *Discord) SendBatch(ctx context.Context, runID string, outcomes []retrieval.Outcome) error {
	if !d.Enabled() {
		return nil
	}
	s := retrieval.Summarize(outcomes)
	var b strings.Builder
	fmt.Fprintf(&b, "Landsat download %s\n\n", runID)
	fmt.Fprintf(&b, "Delivered: %d\nAlready present: %d\nFailed: %d\n", s.Delivered, s.AlreadyPresent, s.Failed)
	for _, o := range outcomes {
		if o.Status == retrieval.StatusFailed {
			fmt.Fprintf(&b, "\n- %s: %s", o.Scene.SceneID, o.Reason)
		}
	}

	if s.Failed == 0 {
		return d.SendSuccess(ctx, b.String())
	}
	if d.ErrorURL == "" {
		return nil
	}
	return d.post(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "⚠️ Partial Download",
		Description: b.String(),
		Color:       colorAmber,
	})
}

func (d *Discord) post(ctx context.Context, url string, embed DiscordEmbed) error {
	if len(embed.Description) > maxDescription {
		embed.Description = embed.Description[:maxDescription] + "…"
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
