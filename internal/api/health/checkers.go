package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/good-yellow-bee/blazereport/internal/render"
)

// RendererChecker verifies a render session can be opened and released.
type RendererChecker struct {
	renderer render.Renderer
}

// NewRendererChecker creates a renderer health checker.
func NewRendererChecker(r render.Renderer) *RendererChecker {
	return &RendererChecker{renderer: r}
}

// Name returns the checker name.
func (c *RendererChecker) Name() string {
	return "renderer"
}

// Check opens and closes a session.
func (c *RendererChecker) Check(ctx context.Context) error {
	if c.renderer == nil {
		return fmt.Errorf("renderer not configured")
	}
	sess, err := c.renderer.Open(ctx)
	if err != nil {
		return err
	}
	return sess.Close()
}

// UpstreamChecker verifies the analytics API answers at all. Any response
// below 500 counts as reachable since no credential is sent.
type UpstreamChecker struct {
	url    string
	client *http.Client
}

// NewUpstreamChecker creates an upstream reachability checker.
func NewUpstreamChecker(url string, client *http.Client) *UpstreamChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &UpstreamChecker{url: url, client: client}
}

// Name returns the checker name.
func (c *UpstreamChecker) Name() string {
	return "upstream"
}

// Check sends a HEAD request to the upstream base URL.
func (c *UpstreamChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}
