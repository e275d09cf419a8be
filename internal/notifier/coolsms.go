package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DrOksusu/dba-portal-auth/internal/phone"
	"github.com/DrOksusu/dba-portal-auth/pkg/httpclient"
)

const (
	sendPath = "/messages/v4/send"

	// statusAccepted is the CoolSMS statusCode for a message queued for delivery.
	statusAccepted = "2000"

	messageTemplate = "[DBA Portal] 인증번호는 %s입니다. 5분 이내에 입력해주세요."
)

// CoolSMSConfig holds the CoolSMS gateway credentials.
type CoolSMSConfig struct {
	APIKey    string
	APISecret string
	Sender    string
	BaseURL   string
}

// CoolSMS delivers verification codes through the CoolSMS v4 messaging API.
type CoolSMS struct {
	cfg     CoolSMSConfig
	client  httpclient.Doer
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewCoolSMS creates a CoolSMS notifier. client is normally a circuit
// breaker client dedicated to the gateway.
func NewCoolSMS(cfg CoolSMSConfig, client httpclient.Doer, logger *slog.Logger) *CoolSMS {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CoolSMS{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		nowFunc: time.Now,
	}
}

type sendRequest struct {
	Message message `json:"message"`
}

type message struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type sendResponse struct {
	MessageID     string `json:"messageId"`
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

// Send delivers code to the phone. Any answer other than an accepted
// message is an error.
func (c *CoolSMS) Send(ctx context.Context, to, code string) error {
	body, err := json.Marshal(sendRequest{Message: message{
		To:   phone.Normalize(to),
		From: c.cfg.Sender,
		Text: fmt.Sprintf(messageTemplate, code),
		Type: "SMS",
	}})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	auth, err := c.authorization()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "coolsms")
	}
	defer func() { _ = resp.Body.Close() }()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}
	if out.StatusCode != statusAccepted {
		return fmt.Errorf("coolsms rejected message: %s %s", out.StatusCode, out.StatusMessage)
	}

	c.logger.DebugContext(ctx, "sms accepted",
		slog.String("phone", phone.Mask(to)),
		slog.String("message_id", out.MessageID),
	)
	return nil
}

// authorization builds the HMAC-SHA256 header CoolSMS expects: the
// signature covers date followed by salt.
func (c *CoolSMS) authorization() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	date := c.nowFunc().UTC().Format(time.RFC3339)

	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(date + saltHex))

	return fmt.Sprintf("HMAC-SHA256 apiKey=%s, date=%s, salt=%s, signature=%s",
		c.cfg.APIKey, date, saltHex, hex.EncodeToString(mac.Sum(nil))), nil
}
