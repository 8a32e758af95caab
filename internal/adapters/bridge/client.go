package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes      = 1 << 20
	defaultRequestTimeout = 30 * time.Second

	pairingsPath     = "/v1/pairings"
	approvePath      = "/v1/pairings/approve"
	sessionsPath     = "/v1/sessions/"
	directLinkPath   = "/v1/direct-link"
	sessionEventPath = "/v1/session-events"

	errorUserRejected = "user_rejected"
)

// Client talks to the wallet-connection bridge daemon. The daemon owns the relay protocol; this
// client only drives pairing, disconnects, the direct-link modal and the session event feed.
type Client struct {
	BaseURL        string
	Token          string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Limiter        *rate.Limiter
}

var (
	_ ports.WalletTransport    = (*Client)(nil)
	_ ports.WalletModal        = (*Client)(nil)
	_ ports.SessionEventSource = (*Client)(nil)
)

type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// NewClient validates the base URL. A zero RateLimit disables client-side limiting.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if _, err := buildAPIURL(cfg.BaseURL, pairingsPath); err != nil {
		return nil, err
	}

	client := &Client{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		HTTPClient:     httpClient,
		RequestTimeout: cfg.Timeout,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		client.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return client, nil
}

// APIError is a non-2xx bridge response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code == "":
		return fmt.Sprintf("status %d", e.Status)
	case e.Message != "":
		return e.Code + ": " + e.Message
	default:
		return e.Code
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type pairingResponse struct {
	URI string `json:"uri"`
}

type approveRequest struct {
	URI string `json:"uri"`
}

type directLinkResponse struct {
	Address string `json:"address"`
	ChainID string `json:"chain_id"`
}

type eventsResponse struct {
	Events []eventPayload `json:"events"`
}

type eventPayload struct {
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Session *sessionPayload `json:"session"`
}

type sessionPayload struct {
	Topic        string                      `json:"topic"`
	Expiry       int64                       `json:"expiry"`
	Acknowledged bool                        `json:"acknowledged"`
	Peer         peerPayload                 `json:"peer"`
	Namespaces   map[string]namespacePayload `json:"namespaces"`
}

type peerPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

type namespacePayload struct {
	Chains   []string `json:"chains"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts"`
}

func (c *Client) RequestPairingURI(ctx context.Context) (string, error) {
	var payload pairingResponse
	if err := c.do(ctx, http.MethodPost, pairingsPath, nil, &payload); err != nil {
		return "", fmt.Errorf("request pairing uri: %w", err)
	}
	if strings.TrimSpace(payload.URI) == "" {
		return "", domain.ErrEmptyPairingURI
	}

	return payload.URI, nil
}

func (c *Client) Pair(ctx context.Context, uri string) error {
	if err := c.do(ctx, http.MethodPost, approvePath, approveRequest{URI: uri}, nil); err != nil {
		return fmt.Errorf("pair: %w", err)
	}

	return nil
}

func (c *Client) Disconnect(ctx context.Context, topic domain.Topic) error {
	if strings.TrimSpace(string(topic)) == "" {
		return errors.New("topic is required")
	}

	err := c.do(ctx, http.MethodDelete, sessionsPath+url.PathEscape(string(topic)), nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return fmt.Errorf("disconnect %s: %w", topic, domain.ErrSessionNotFound)
		}
		return fmt.Errorf("disconnect %s: %w", topic, err)
	}

	return nil
}

// Open asks the bridge to show its wallet picker and waits for the user's choice.
func (c *Client) Open(ctx context.Context) (domain.WalletIdentity, error) {
	var payload directLinkResponse
	if err := c.do(ctx, http.MethodPost, directLinkPath, nil, &payload); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Code == errorUserRejected {
			return domain.WalletIdentity{}, domain.ErrUserCancelled
		}
		return domain.WalletIdentity{}, fmt.Errorf("open direct link: %w", err)
	}
	if strings.TrimSpace(payload.Address) == "" {
		return domain.WalletIdentity{}, errors.New("direct link response missing address")
	}

	return domain.WalletIdentity{Address: payload.Address, ChainID: payload.ChainID}, nil
}

func (c *Client) Events(ctx context.Context, since int64) ([]domain.SessionEvent, error) {
	path := sessionEventPath + "?since=" + strconv.FormatInt(since, 10)

	var payload eventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}

	events := make([]domain.SessionEvent, 0, len(payload.Events))
	for _, raw := range payload.Events {
		event, err := toEvent(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

func toEvent(raw eventPayload) (domain.SessionEvent, error) {
	event := domain.SessionEvent{
		Seq:   raw.Seq,
		Kind:  domain.SessionEventKind(raw.Type),
		Topic: domain.Topic(raw.Topic),
	}

	switch event.Kind {
	case domain.SessionEstablished, domain.SessionUpdated:
		if raw.Session == nil {
			return domain.SessionEvent{}, fmt.Errorf("session event %d: %s event without session", raw.Seq, raw.Type)
		}
		event.Session = toSession(*raw.Session)
		if event.Topic == "" {
			event.Topic = event.Session.Topic
		}
	case domain.SessionDeleted:
		if event.Topic == "" && raw.Session != nil {
			event.Topic = domain.Topic(raw.Session.Topic)
		}
		if event.Topic == "" {
			return domain.SessionEvent{}, fmt.Errorf("session event %d: deleted event without topic", raw.Seq)
		}
	default:
		return domain.SessionEvent{}, fmt.Errorf("session event %d: unsupported type %q", raw.Seq, raw.Type)
	}

	return event, nil
}

func toSession(raw sessionPayload) domain.Session {
	session := domain.Session{
		Topic:        domain.Topic(raw.Topic),
		Acknowledged: raw.Acknowledged,
		Peer: domain.PeerMetadata{
			Name:        raw.Peer.Name,
			Description: raw.Peer.Description,
			URL:         raw.Peer.URL,
			Icons:       raw.Peer.Icons,
		},
	}
	if raw.Expiry > 0 {
		session.Expiry = time.Unix(raw.Expiry, 0).UTC()
	}
	if len(raw.Namespaces) > 0 {
		session.Namespaces = make(map[string]domain.Namespace, len(raw.Namespaces))
		for key, ns := range raw.Namespaces {
			session.Namespaces[key] = domain.Namespace(ns)
		}
	}

	return session
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint, err := buildAPIURL(c.BaseURL, path)
	if err != nil {
		return err
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(requestCtx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err == nil {
		apiErr.Code = payload.Error
		apiErr.Message = payload.Message
	}

	return apiErr
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("bridge base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse bridge base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("bridge base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("bridge base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse bridge path: %w", err)
	}

	return endpoint.String(), nil
}
