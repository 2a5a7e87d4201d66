package anidb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/anidex/anidex/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient() *Client {
	return New(Config{
		Command: "anidb-mcp-server",
		Timeout: time.Second,
	}, testutil.DiscardLogger())
}

func TestCallsRequireConnection(t *testing.T) {
	c := newTestClient()
	ctx := context.Background()

	_, err := c.Search(ctx, "evangelion")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.FetchDetails(ctx, 30)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseWhenDisconnectedIsNoop(t *testing.T) {
	c := newTestClient()
	c.Close()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDialFailureReturnsConnectError(t *testing.T) {
	d := NewDialer(Config{
		Command: filepath.Join(t.TempDir(), "no-such-server"),
		Timeout: time.Second,
	}, testutil.DiscardLogger())

	_, err := d.Dial(context.Background())
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnecting", StateDisconnecting.String())
}

func TestResultTextContent(t *testing.T) {
	assert.Equal(t, "", resultText(&mcp.CallToolResult{}), "no content blocks yields an empty payload")
	assert.Equal(t, "payload", resultText(&mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "payload"}},
	}))
}

func TestDecodeSearchResults(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []SearchResult
	}{
		{
			name: "bare array",
			data: `[{"aid": 30, "title": "Shinseiki Evangelion"}, {"aid": 32, "title": "Death & Rebirth"}]`,
			want: []SearchResult{{ID: 30, Title: "Shinseiki Evangelion"}, {ID: 32, Title: "Death & Rebirth"}},
		},
		{
			name: "wrapped object",
			data: `{"results": [{"aid": 30, "title": "Shinseiki Evangelion"}]}`,
			want: []SearchResult{{ID: 30, Title: "Shinseiki Evangelion"}},
		},
		{
			name: "single bare hit object",
			data: `{"aid": 30, "title": "Shinseiki Evangelion"}`,
			want: []SearchResult{{ID: 30, Title: "Shinseiki Evangelion"}},
		},
		{
			name: "single hit with kind and year",
			data: `{"aid": 30, "title": "Shinseiki Evangelion", "type": "TV Series", "year": 1995}`,
			want: []SearchResult{{ID: 30, Title: "Shinseiki Evangelion", Kind: "TV Series", Year: 1995}},
		},
		{
			name: "single object without id",
			data: `{"title": "no id"}`,
			want: nil,
		},
		{
			name: "hits without ids dropped",
			data: `[{"title": "no id"}, {"aid": 30, "title": "keep"}]`,
			want: []SearchResult{{ID: 30, Title: "keep"}},
		},
		{
			name: "empty array",
			data: `[]`,
			want: nil,
		},
		{
			name: "object without results",
			data: `{"message": "nothing found"}`,
			want: nil,
		},
		{
			name: "junk",
			data: `not even json`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeSearchResults([]byte(tt.data))
			assert.Equal(t, len(tt.want), len(got))
			for i := range tt.want {
				assert.Equal(t, tt.want[i], got[i])
			}
		})
	}
}
