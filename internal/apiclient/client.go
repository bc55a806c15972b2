package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Session is what login hands back.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
}

// QRCode is one generated token plus the timings the display should use.
type QRCode struct {
	Data        string
	RotateEvery time.Duration
	SessionTTL  time.Duration
}

// Client calls the attendance API on behalf of a teacher display.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   string
}

// New creates a client with a short timeout; every call is a small JSON exchange.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Login signs in as a teacher and keeps the bearer token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
		ExpiresAt   int64  `json:"expiresAt"`
	}
	err := c.post(ctx, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
		"role":     "teacher",
	}, &out)
	if err != nil {
		return Session{}, err
	}
	if out.AccessToken == "" {
		return Session{}, fmt.Errorf("login response carried no access token")
	}
	c.Token = out.AccessToken
	return Session{AccessToken: out.AccessToken, ExpiresAt: time.Unix(out.ExpiresAt, 0)}, nil
}

// GenerateQR asks for a fresh token for subjectID.
func (c *Client) GenerateQR(ctx context.Context, subjectID string) (QRCode, error) {
	var out struct {
		QRData      string `json:"qrData"`
		RotateEvery int    `json:"rotateEvery"`
		SessionTTL  int    `json:"sessionTtl"`
	}
	if err := c.post(ctx, "/v1/teacher/generate-qr", map[string]string{"subjectId": subjectID}, &out); err != nil {
		return QRCode{}, err
	}
	return QRCode{
		Data:        out.QRData,
		RotateEvery: time.Duration(out.RotateEvery) * time.Second,
		SessionTTL:  time.Duration(out.SessionTTL) * time.Second,
	}, nil
}

// Health checks if the API is available.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("api unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("api unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeFailure(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeFailure surfaces the API's {"message": ...} body when there is one.
func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return fmt.Errorf("api error %s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("api error %s: %s", resp.Status, string(raw))
}
