// Package client es el cliente HTTP del agente contra el service: key-fetch
// y heartbeat, con bearer token y retry acotado. Implementa
// verifier.KeyFetcher.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

const (
	defaultTimeout = 10 * time.Second

	// fetchRetries es el presupuesto de reintentos del key-fetch: el intento
	// inicial más UNO. Ninguna operación del agente bloquea indefinidamente.
	fetchRetries = 1
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchKeys pide GET /v1/agent/keys y convierte la respuesta al formato del
// key cache. Reintenta una sola vez con backoff exponencial.
func (c *Client) FetchKeys(ctx context.Context) (*keycache.KeyPair, *keycache.KeyPair, error) {
	var resp protocol.KeyFetchResponse

	op := func() error {
		return c.getJSON(ctx, "/v1/agent/keys", &resp)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, nil, fmt.Errorf("client: fetch keys: %w", err)
	}

	if resp.Current == "" {
		return nil, nil, fmt.Errorf("client: fetch keys: empty current key")
	}
	now := time.Now().UTC()
	current := &keycache.KeyPair{
		KID:          signing.KIDFor(resp.Current),
		PublicKeyPEM: resp.Current,
		CreatedAt:    now,
	}
	var old *keycache.KeyPair
	if resp.Old != nil && *resp.Old != "" {
		old = &keycache.KeyPair{
			KID:          signing.KIDFor(*resp.Old),
			PublicKeyPEM: *resp.Old,
			CreatedAt:    now,
		}
	}
	return current, old, nil
}

// Heartbeat envía POST /v1/agent/heartbeat y devuelve el ack (que incluye
// current_key_hash para el reconciler). Sin retry: el próximo ciclo de
// heartbeat ya es el reintento.
func (c *Client) Heartbeat(ctx context.Context, req protocol.HeartbeatRequest) (*protocol.HeartbeatAck, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client: heartbeat: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/agent/heartbeat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: heartbeat: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("client: heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("heartbeat", resp)
	}

	var ack protocol.HeartbeatAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("client: heartbeat decode: %w", err)
	}
	return &ack, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err // transporte: reintentable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	case resp.StatusCode >= 500:
		return statusError(path, resp) // server-side: reintentable
	default:
		return backoff.Permanent(statusError(path, resp))
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("client: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(b)))
}
