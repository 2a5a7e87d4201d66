// Package anidb talks to the external anime metadata service over the
// Model Context Protocol. The service runs as a subprocess speaking
// MCP on stdio and exposes two tools: a title search and a details
// fetch. Sessions are scoped: a Dialer spawns a fresh subprocess per
// Dial, the caller Closes it when done, and the dialer's shared rate
// limiter throttles calls across sessions to respect the upstream's
// rate policy.
package anidb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/time/rate"
)

// Tool names exposed by the metadata server.
const (
	toolSearch  = "anidb_search"
	toolDetails = "anidb_details"
)

// Client errors. Checked with errors.Is by the retrieval layer to
// decide whether a fallback attempt can proceed.
var (
	// ErrNotConnected indicates a call was made outside the connected state.
	ErrNotConnected = errors.New("anidb: client not connected")

	// ErrConnectFailed indicates the subprocess or MCP handshake failed.
	ErrConnectFailed = errors.New("anidb: connect failed")

	// ErrTransport indicates the server reported an error or returned
	// an unusable result.
	ErrTransport = errors.New("anidb: transport error")
)

// State is the client connection state. Transitions are linear:
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the subprocess command line and call policy.
type Config struct {
	// Command is the metadata server binary; Args its arguments.
	Command string
	Args    []string

	// Timeout bounds each individual tool call.
	Timeout time.Duration

	// RatePerMinute throttles tool calls. Zero disables throttling.
	RatePerMinute int
}

// SearchResult is one hit from the title search tool. Kind and Year
// are informational; the retrieval layer keys on ID alone.
type SearchResult struct {
	ID    int    `json:"aid"`
	Title string `json:"title"`
	Kind  string `json:"type"`
	Year  int    `json:"year"`
}

// Client is a stateful MCP client for the metadata service. Safe for
// concurrent use; calls serialize on the session through the limiter
// and the SDK's own synchronization.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	state   State
	session *mcp.ClientSession
}

// New creates a disconnected client. Call Connect before using it.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		limiter: newLimiter(cfg),
		state:   StateDisconnected,
	}
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RatePerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
}

// Dialer hands out connected clients, one per fallback attempt. The
// rate limiter lives on the dialer so sessions throttle against the
// upstream together rather than each getting a fresh allowance.
type Dialer struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewDialer creates a dialer from the subprocess config.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, logger: logger, limiter: newLimiter(cfg)}
}

// Dial spawns the metadata server subprocess and performs the MCP
// handshake. The caller owns the returned session and must Close it
// on every path.
func (d *Dialer) Dial(ctx context.Context) (*Client, error) {
	c := New(d.cfg, d.logger)
	c.limiter = d.limiter
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect spawns the metadata server subprocess and performs the MCP
// handshake. Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected:
		return nil
	case StateConnecting, StateDisconnecting:
		return fmt.Errorf("%w: client is %s", ErrConnectFailed, c.state)
	}
	c.state = StateConnecting

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "anidex",
		Version: "1.0.0",
	}, nil)

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		c.state = StateDisconnected
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	c.session = session
	c.state = StateConnected
	c.logger.Info("metadata service connected",
		"command", c.cfg.Command, "rate_per_minute", c.cfg.RatePerMinute)
	return nil
}

// Close shuts the session and subprocess down. Errors are logged, not
// returned: teardown failures cannot be acted on by callers.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		c.state = StateDisconnected
		return
	}
	c.state = StateDisconnecting
	if err := c.session.Close(); err != nil {
		c.logger.Warn("closing metadata session", "error", err)
	}
	c.session = nil
	c.state = StateDisconnected
	c.logger.Info("metadata service disconnected")
}

// Search looks a title up and returns the server's candidate list.
// Responses that are not a recognizable hit list decode to an empty
// slice rather than an error; the upstream is loose about shapes.
func (c *Client) Search(ctx context.Context, title string) ([]SearchResult, error) {
	text, err := c.callTool(ctx, toolSearch, map[string]any{"query": title})
	if err != nil {
		return nil, err
	}
	results := decodeSearchResults([]byte(text))
	if len(results) == 0 {
		c.logger.Debug("search returned no usable hits", "title", title)
	}
	return results, nil
}

// FetchDetails retrieves the raw details payload for an external id.
// The payload may be JSON or legacy XML; normalization happens in the
// show package. An id the upstream has nothing for yields an empty
// payload, not an error.
func (c *Client) FetchDetails(ctx context.Context, externalID int) ([]byte, error) {
	text, err := c.callTool(ctx, toolDetails, map[string]any{"aid": externalID})
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// callTool runs one tool call under the rate limiter and per-call
// timeout, returning the first text content block.
func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	session := c.session
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || session == nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotConnected)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s: waiting for rate limiter: %w", name, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	started := time.Now()
	result, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", name, ErrTransport, err)
	}
	c.logger.Debug("tool call completed", "tool", name, "duration", time.Since(started))

	if result.IsError {
		return "", fmt.Errorf("%s: %w: server reported error: %s", name, ErrTransport, resultText(result))
	}
	text := resultText(result)
	if text == "" {
		// Empty content is a soft miss, not a transport failure: the
		// upstream answers some ids with nothing at all.
		c.logger.Debug("tool call returned empty content", "tool", name)
	}
	return text, nil
}

// resultText extracts the first text content block, if any.
func resultText(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// decodeSearchResults handles the shapes the search tool is known to
// produce: a bare array of hits, an object wrapping the array under
// "results", a single bare hit object, or junk. Junk decodes to nothing.
func decodeSearchResults(data []byte) []SearchResult {
	var direct []SearchResult
	if err := json.Unmarshal(data, &direct); err == nil {
		return compactResults(direct)
	}

	var wrapped struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Results) > 0 {
		return compactResults(wrapped.Results)
	}

	// Some server versions answer with the single best hit unwrapped.
	var single SearchResult
	if err := json.Unmarshal(data, &single); err == nil && single.ID > 0 {
		return []SearchResult{single}
	}
	return nil
}

// compactResults drops hits without a usable id.
func compactResults(results []SearchResult) []SearchResult {
	out := results[:0]
	for _, r := range results {
		if r.ID > 0 {
			out = append(out, r)
		}
	}
	return out
}
