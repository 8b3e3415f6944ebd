package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/amirimatin/go-freshness/pkg/transport"
)

// Client is a thin HTTP client for the admin API. It supports optional
// TLS configuration and simple retry with backoff for robustness.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

func (c *Client) url(addr, path string) string {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    return fmt.Sprintf("%s://%s%s", scheme, addr, path)
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    // addr expected as host:port from membership; prefix scheme based on TLS
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(addr, "/status"), nil)
    if err != nil { return nil, err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            defer resp.Body.Close()
            if resp.StatusCode != http.StatusOK {
                b, _ := io.ReadAll(resp.Body)
                lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
            } else {
                return io.ReadAll(resp.Body)
            }
        }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}

func (c *Client) PostCheck(ctx context.Context, addr string, req transport.CheckRequest) (transport.CheckResult, error) {
    var out transport.CheckResult
    err := c.postJSON(ctx, c.url(addr, "/check"), req, &out, "check", func() string { return out.Error })
    return out, err
}

func (c *Client) PostAdvance(ctx context.Context, addr string, req transport.AdvanceRequest) (transport.AdvanceResult, error) {
    var out transport.AdvanceResult
    err := c.postJSON(ctx, c.url(addr, "/optime"), req, &out, "optime", func() string { return out.Error })
    return out, err
}

// postJSON posts in to url and decodes the reply into out, retrying up
// to three times with backoff. The request body is rebuilt per attempt;
// a consumed reader must never be resent. errOf surfaces the handler's
// embedded error message for non-200 replies.
func (c *Client) postJSON(ctx context.Context, url string, in, out any, label string, errOf func() string) error {
    body, err := json.Marshal(in)
    if err != nil { return err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
        if err != nil { return err }
        httpReq.Header.Set("Content-Type", "application/json")
        resp, err := c.httpc.Do(httpReq)
        if err != nil {
            lastErr = err
        } else {
            func() {
                defer resp.Body.Close()
                b, _ := io.ReadAll(resp.Body)
                _ = json.Unmarshal(b, out)
                if resp.StatusCode != http.StatusOK {
                    if msg := errOf(); msg != "" {
                        lastErr = errors.New(msg)
                    } else {
                        lastErr = fmt.Errorf("%s status %d: %s", label, resp.StatusCode, string(b))
                    }
                } else {
                    lastErr = nil
                }
            }()
            if lastErr == nil { return nil }
        }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            if lastErr == nil { lastErr = ctx.Err() }
            return lastErr
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return lastErr
}

var _ transport.AdminClient = (*Client)(nil)
