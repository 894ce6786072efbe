package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

// APIVersion is the provider API revision sent on every request.
const APIVersion = "2021-07-28"

var (
	ErrSubjectRequired = errors.New("subject is required for emails")
	ErrMissingContact  = errors.New("contact id is required")
	ErrUnknownChannel  = errors.New("unknown message channel")
)

// MessagingClient sends conversation messages through the provider API.
type MessagingClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewMessagingClient(baseURL, token string, timeout time.Duration) *MessagingClient {
	return &MessagingClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendMessageRequest struct {
	Type      string `json:"type"`
	ContactID string `json:"contactId"`
	Message   string `json:"message,omitempty"`
	Subject   string `json:"subject,omitempty"`
	HTML      string `json:"html,omitempty"`
}

type sendMessageResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// Send delivers msg and returns the provider message id, which may be empty.
func (c *MessagingClient) Send(ctx context.Context, msg model.OutboundMessage) (string, error) {
	payload, err := buildPayload(msg)
	if err != nil {
		return "", err
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("failed to send %s: unexpected status code: %d body=%q", msg.Channel, resp.StatusCode, string(body))
	}

	var sr sendMessageResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &sr); err != nil {
			return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
		}
	}
	return sr.MessageID, nil
}

func buildPayload(msg model.OutboundMessage) (sendMessageRequest, error) {
	if msg.ContactID == "" {
		return sendMessageRequest{}, ErrMissingContact
	}

	p := sendMessageRequest{
		Type:      string(msg.Channel),
		ContactID: msg.ContactID,
	}

	switch msg.Channel {
	case model.ChannelEmail:
		if msg.Subject == "" {
			return sendMessageRequest{}, ErrSubjectRequired
		}
		p.Subject = msg.Subject
		p.HTML = msg.Body
	case model.ChannelSMS:
		p.Message = msg.Body
	default:
		return sendMessageRequest{}, fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
	return p, nil
}
