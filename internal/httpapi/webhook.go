package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/config"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/delivery"
)

type webhookHandler struct {
	cfg      *config.Config
	checkins *checkin.Service
	pipeline *delivery.Pipeline
}

// webhookEnvelope is the subset of the WhatsApp Business webhook payload we
// consume. Individual messages stay as raw JSON so the audit copy keeps
// fields we do not model.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []json.RawMessage `json:"messages"`
				Statuses []statusReceipt   `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

type statusReceipt struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// Verify answers the subscription handshake Meta performs when the webhook
// URL is registered.
func (h *webhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != h.cfg.WhatsApp.VerifyToken {
		c.Status(http.StatusForbidden)
		return
	}

	zap.L().Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive ingests inbound messages and provider delivery receipts. Dedup in
// the check-in service makes provider redelivery safe, so the handler always
// acknowledges once the envelope parses.
func (h *webhookHandler) Receive(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if h.cfg.AppEnv == "production" {
		signature := c.GetHeader("X-Hub-Signature-256")
		if !h.validSignature(raw, signature) {
			zap.L().Warn("invalid webhook signature")
			c.Status(http.StatusUnauthorized)
			return
		}
	}

	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if env.Object != "whatsapp_business_account" {
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, rawMsg := range change.Value.Messages {
				if err := h.processMessage(ctx, rawMsg); err != nil {
					zap.L().Error("failed to process inbound message", zap.Error(err))
				}
			}
			for _, receipt := range change.Value.Statuses {
				if err := h.pipeline.MarkProviderStatus(ctx, receipt.ID, receipt.Status); err != nil {
					zap.L().Warn("failed to record provider receipt",
						zap.String("provider_message_id", receipt.ID),
						zap.String("status", receipt.Status),
						zap.Error(err))
				}
			}
		}
	}

	c.Status(http.StatusOK)
}

func (h *webhookHandler) processMessage(ctx context.Context, raw json.RawMessage) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed message payload: %w", err)
	}

	sec, err := strconv.ParseInt(msg.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed message timestamp %q: %w", msg.Timestamp, err)
	}

	body := ""
	if msg.Text != nil {
		body = msg.Text.Body
	}

	res, err := h.checkins.Ingest(ctx, checkin.IngestRequest{
		Phone:      msg.From,
		Type:       msg.Type,
		Body:       body,
		ReceivedAt: time.Unix(sec, 0).UTC(),
		Raw:        raw,
	})
	if err != nil {
		return err
	}
	if res.Duplicate {
		zap.L().Debug("duplicate message skipped", zap.String("phone", msg.From))
	}
	return nil
}

func (h *webhookHandler) validSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.cfg.WhatsApp.VerifyToken))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

type testMessageRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	MessageText string `json:"message_text" binding:"required"`
}

// Test simulates an inbound text message without going through the provider.
// Mounted only when the mock sender is active.
func (h *webhookHandler) Test(c *gin.Context) {
	var req testMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone_number and message_text are required"})
		return
	}

	now := time.Now().UTC()
	raw, _ := json.Marshal(map[string]any{
		"from":      req.PhoneNumber,
		"id":        fmt.Sprintf("test_%d", now.UnixNano()),
		"timestamp": strconv.FormatInt(now.Unix(), 10),
		"type":      "text",
		"text":      map[string]string{"body": req.MessageText},
	})

	res, err := h.checkins.Ingest(c.Request.Context(), checkin.IngestRequest{
		Phone:      req.PhoneNumber,
		Type:       "text",
		Body:       req.MessageText,
		ReceivedAt: now,
		Raw:        raw,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"duplicate":      res.Duplicate,
		"milestone":      res.Milestone,
		"current_streak": res.Contact.CurrentStreak,
	})
}
