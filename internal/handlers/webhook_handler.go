package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tagforge/internal/interfaces"
	"github.com/ternarybob/tagforge/internal/models"
)

// maxWebhookBody bounds inbound webhook payloads. Platform webhooks
// are well under this; anything larger is not a webhook.
const maxWebhookBody = 2 << 20

// WebhookHandler receives platform webhook deliveries, verifies their
// signature, and enqueues them for asynchronous processing. The
// response is always fast: the platform drops webhook subscriptions
// for slow consumers.
type WebhookHandler struct {
	queue  interfaces.QueueManager
	secret string
	logger arbor.ILogger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(queue interfaces.QueueManager, secret string, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		queue:  queue,
		secret: secret,
		logger: logger,
	}
}

// ReceiveHandler handles POST /webhooks/{topic...}. The topic comes
// from the X-Shopify-Topic header, falling back to the URL path.
func (h *WebhookHandler) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read webhook body")
		WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Shopify-Hmac-Sha256")) {
		h.logger.Warn().
			Str("remote", r.RemoteAddr).
			Str("path", r.URL.Path).
			Msg("Webhook signature verification failed")
		WriteError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	shop := strings.ToLower(r.Header.Get("X-Shopify-Shop-Domain"))
	if shop == "" {
		WriteError(w, http.StatusBadRequest, "Missing shop domain header")
		return
	}

	topic := r.Header.Get("X-Shopify-Topic")
	if topic == "" {
		topic = extractTopicFromPath(r.URL.Path)
	}
	if topic == "" {
		WriteError(w, http.StatusBadRequest, "Missing webhook topic")
		return
	}

	event := models.WebhookEvent{
		Topic:      topic,
		Shop:       shop,
		Payload:    body,
		ReceivedAt: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal webhook event")
		WriteError(w, http.StatusInternalServerError, "Failed to process webhook")
		return
	}

	err = h.queue.Enqueue(r.Context(), models.QueueMessage{
		Type:    models.MessageTypeWebhook,
		Payload: payload,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("shop", shop).Str("topic", topic).Msg("Failed to enqueue webhook")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue webhook")
		return
	}

	h.logger.Debug().
		Str("shop", shop).
		Str("topic", topic).
		Int("bytes", len(body)).
		Msg("Webhook enqueued")

	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the base64 HMAC-SHA256 digest of the raw body
// against the shared webhook secret, in constant time.
func (h *WebhookHandler) verifySignature(body []byte, header string) bool {
	if h.secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// extractTopicFromPath turns "/webhooks/orders/create" into
// "orders/create".
func extractTopicFromPath(path string) string {
	rest := strings.Trim(strings.TrimPrefix(path, "/webhooks"), "/")
	if strings.Count(rest, "/") != 1 {
		return ""
	}
	return rest
}
