package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhook struct {
	*httptest.Server
	mu       sync.Mutex
	received map[string][]DiscordMessage
}

func newWebhook(t *testing.T, status int) *webhook {
	t.Helper()
	w := &webhook{received: map[string][]DiscordMessage{}}
	w.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var msg DiscordMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.received[r.URL.Path] = append(w.received[r.URL.Path], msg)
		w.mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(w.Close)
	return w
}

func outcome(id string, status retrieval.Status, reason string) retrieval.Outcome {
	return retrieval.Outcome{Scene: landsat.SceneRecord{SceneID: id}, Status: status, Reason: reason}
}

func TestSendBatchSuccess(t *testing.T) {
	w := newWebhook(t, http.StatusNoContent)
	d := &Discord{ErrorURL: w.URL + "/error", SuccessURL: w.URL + "/success", Client: w.Client()}

	err := d.SendBatch(context.Background(), "run-1", []retrieval.Outcome{
		outcome("a", retrieval.StatusDelivered, ""),
		outcome("b", retrieval.StatusAlreadyPresent, ""),
	})
	require.NoError(t, err)
	require.Len(t, w.received["/success"], 1)
	embed := w.received["/success"][0].Embeds[0]
	assert.Contains(t, embed.Description, "run-1")
	assert.Contains(t, embed.Description, "Delivered: 1")
	assert.Equal(t, colorGreen, embed.Color)
	assert.Empty(t, w.received["/error"])
}

func TestSendBatchWithFailures(t *testing.T) {
	w := newWebhook(t, http.StatusOK)
	d := &Discord{ErrorURL: w.URL + "/error", SuccessURL: w.URL + "/success", Client: w.Client()}

	err := d.SendBatch(context.Background(), "run-2", []retrieval.Outcome{
		outcome("a", retrieval.StatusDelivered, ""),
		outcome("b", retrieval.StatusFailed, "GET x: unexpected status 404"),
	})
	require.NoError(t, err)
	require.Len(t, w.received["/error"], 1)
	embed := w.received["/error"][0].Embeds[0]
	assert.Contains(t, embed.Description, "- b: GET x: unexpected status 404")
	assert.Equal(t, colorAmber, embed.Color)
}

func TestDisabledDiscordSendsNothing(t *testing.T) {
	var d *Discord
	assert.False(t, d.Enabled())
	assert.NoError(t, d.SendError(context.Background(), "boom"))
	assert.NoError(t, (&Discord{}).SendBatch(context.Background(), "run", nil))
}

func TestSendErrorStatus(t *testing.T) {
	w := newWebhook(t, http.StatusTooManyRequests)
	d := &Discord{ErrorURL: w.URL + "/error", Client: w.Client()}
	err := d.SendError(context.Background(), strings.Repeat("x", 5000))
	assert.ErrorContains(t, err, "429")
	require.Len(t, w.received["/error"], 1)
	assert.LessOrEqual(t, len(w.received["/error"][0].Embeds[0].Description), maxDescription+len("…"))
}
