package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardlang/wci/internal/config"
	"github.com/wardlang/wci/internal/server"
)

// newTestServer builds an MCP server over an in-memory session with a few
// contracts indexed.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Enabled = false
	session := server.NewSession(cfg)
	idx := session.Index()
	idx.OpenOrUpdate("file:///bank.ward", `contract transfer(from, to, amount) = from`)
	idx.OpenOrUpdate("file:///pay.ward", `contract pay(acct) = transfer(acct, vault, 100)`)
	idx.OpenOrUpdate("file:///refund.ward", `contract refund(acct) = transfer(vault, acct, 100)`)
	return NewServer(session)
}

func callTool(t *testing.T, handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args interface{}) map[string]interface{} {
	t.Helper()
	paramsBytes, err := json.Marshal(args)
	require.NoError(t, err)

	result, err := handler(context.Background(), &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{
		Arguments: paramsBytes,
	}})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	return decoded
}

func TestHandleFindDefinition(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleFindDefinition, map[string]string{"name": "transfer"})
	require.Equal(t, true, resp["success"])
	loc := resp["location"].(map[string]interface{})
	assert.Equal(t, "file:///bank.ward", loc["uri"])
}

func TestHandleFindDefinition_MissSuggests(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleFindDefinition, map[string]string{"name": "transfr"})
	require.Equal(t, false, resp["success"])
	suggestions, ok := resp["suggestions"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, suggestions, "transfer")
}

func TestHandleFindDefinition_MissingName(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s.handleFindDefinition, map[string]string{})
	assert.Equal(t, false, resp["success"])
}

func TestHandleFindReferences(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleFindReferences, map[string]string{"name": "transfer"})
	require.Equal(t, true, resp["success"])
	assert.Equal(t, float64(2), resp["count"])
	refs := resp["references"].([]interface{})
	first := refs[0].(map[string]interface{})
	assert.Equal(t, "file:///pay.ward", first["uri"])
}

func TestHandleFindInvocations(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleFindInvocations, map[string]interface{}{
		"pattern": "transfer(?from, ?to, 100)",
	})
	require.Equal(t, true, resp["success"])
	assert.Equal(t, float64(2), resp["count"])
	assert.Equal(t, false, resp["truncated"])

	matches := resp["matches"].([]interface{})
	bindings := matches[0].(map[string]interface{})["bindings"].(map[string]interface{})
	assert.NotEmpty(t, bindings["from"])
	assert.NotEmpty(t, bindings["to"])
}

func TestHandleFindInvocations_MaxTruncates(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleFindInvocations, map[string]interface{}{
		"pattern": "transfer(?a, ?b, ?c)",
		"max":     1,
	})
	require.Equal(t, true, resp["success"])
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, true, resp["truncated"])
}

func TestHandleFindInvocations_MalformedPattern(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleFindInvocations, map[string]interface{}{
		"pattern": "transfer(?from,",
	})
	require.Equal(t, false, resp["success"])
	assert.NotEmpty(t, resp["reason"], "malformed pattern carries its reason")
	assert.Equal(t, "find_invocations", resp["operation"])
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s.handleStatus, map[string]string{})
	require.Equal(t, true, resp["success"])
	assert.Equal(t, float64(3), resp["files"])
	assert.Equal(t, false, resp["watching"])
}
