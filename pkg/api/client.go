package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PeerClient delivers reload requests to other cluster nodes over
// their admin HTTP port.
type PeerClient struct {
	port    int
	timeout time.Duration
	http    *http.Client
}

// NewPeerClient creates a client for peer fan-out calls
func NewPeerClient(port int, timeout time.Duration) *PeerClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &PeerClient{
		port:    port,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// Reload asks one peer to reconcile locally. broadcast is always
// false downstream so fan-out never recurses.
func (c *PeerClient) Reload(ctx context.Context, ip, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/cluster/reload?broadcast=false", ip, c.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}
