package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/PixelCrafter-ath/fit/pkg/config"
)

// Sender is the outbound send collaborator. The pipeline is its sole caller.
type Sender interface {
	Send(ctx context.Context, phone, template, language string, params []string) (providerMessageID string, err error)
}

// WhatsAppSender sends template messages through the WhatsApp Business cloud
// API.
type WhatsAppSender struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	client        *http.Client
}

func NewWhatsAppSender(cfg *config.Config) *WhatsAppSender {
	return &WhatsAppSender{
		accessToken:   cfg.WhatsApp.AccessToken,
		phoneNumberID: cfg.WhatsApp.PhoneNumberID,
		baseURL:       cfg.WhatsApp.BaseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Template         struct {
		Name     string `json:"name"`
		Language struct {
			Code string `json:"code"`
		} `json:"language"`
		Components []struct {
			Type       string              `json:"type"`
			Parameters []templateParameter `json:"parameters"`
		} `json:"components"`
	} `json:"template"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (w *WhatsAppSender) Send(ctx context.Context, phone, template, language string, params []string) (string, error) {
	body := sendRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "template",
	}
	body.Template.Name = template
	body.Template.Language.Code = language

	parameters := make([]templateParameter, 0, len(params))
	for _, p := range params {
		parameters = append(parameters, templateParameter{Type: "text", Text: p})
	}
	body.Template.Components = []struct {
		Type       string              `json:"type"`
		Parameters []templateParameter `json:"parameters"`
	}{
		{Type: "body", Parameters: parameters},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("unexpected provider response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if parsed.Error != nil {
			return "", fmt.Errorf("provider rejected send (code %d): %s", parsed.Error.Code, parsed.Error.Message)
		}
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("provider returned no message id")
	}

	return parsed.Messages[0].ID, nil
}

// MockSender logs instead of calling the provider. Used when no provider
// credentials are configured.
type MockSender struct{}

func (MockSender) Send(ctx context.Context, phone, template, language string, params []string) (string, error) {
	id := fmt.Sprintf("mock_%d", time.Now().UnixNano())
	zap.L().Info("mock message sent",
		zap.String("phone", phone),
		zap.String("template", template),
		zap.String("language", language),
		zap.Strings("params", params),
		zap.String("provider_message_id", id),
	)
	return id, nil
}

// ProvideSender picks the real sender when credentials are present and the
// mock otherwise.
func ProvideSender(cfg *config.Config) Sender {
	if cfg.WhatsApp.Mock || cfg.WhatsApp.AccessToken == "" {
		return MockSender{}
	}
	return NewWhatsAppSender(cfg)
}
