// Package mcp exposes the contract index over the Model Context Protocol
// on stdio. It is a thin transport: every tool is a direct projection of a
// session query, and all state lives in the server package underneath.
package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wardlang/wci/internal/server"
	"github.com/wardlang/wci/internal/version"
)

// Server wraps an MCP stdio server around one index session.
type Server struct {
	session *server.Session
	server  *mcp.Server
}

// NewServer creates an MCP server for an already-constructed session.
// The caller owns the session lifecycle; Run only speaks the protocol.
func NewServer(session *server.Session) *Server {
	s := &Server{
		session: session,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "wci-mcp-server",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "find_definition",
		Description: "Resolve a contract name to its definition location. Quoted and bare contract names share one namespace; pass the name without quotes.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {
					Type:        "string",
					Description: "Contract name to resolve (e.g. 'transfer')",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleFindDefinition)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_references",
		Description: "List every invocation site of a contract across the workspace, ordered by file then position.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {
					Type:        "string",
					Description: "Contract name to find invocations of",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleFindReferences)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_invocations",
		Description: "Structural search over indexed invocations with unification. Variables start with '?' and bind whole subterms; a repeated variable must bind equal subterms. Examples: transfer(?from, ?to, 100) | transfer(?x, ?x) | ?f(account)",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern": {
					Type:        "string",
					Description: "Invocation pattern, e.g. transfer(?from, ?to, ?amount)",
				},
				"max": {
					Type:        "integer",
					Description: "Maximum matches to return (default 100)",
				},
			},
			Required: []string{"pattern"},
		},
	}, s.handleFindInvocations)

	s.server.AddTool(&mcp.Tool{
		Name:        "status",
		Description: "Report index health: files indexed, fragment count, cache state, watcher activity.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleStatus)
}

// Run serves the protocol on stdio until the context is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
