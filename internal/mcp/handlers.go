package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	wcierrors "github.com/wardlang/wci/internal/errors"
	"github.com/wardlang/wci/internal/types"
)

const defaultMaxMatches = 100

// maxSuggestions bounds the fuzzy candidates returned on a failed name
// lookup.
const maxSuggestions = 5

type nameParams struct {
	Name string `json:"name"`
}

type invocationParams struct {
	Pattern string `json:"pattern"`
	Max     int    `json:"max"`
}

// locationJSON is the wire form of a source location.
type locationJSON struct {
	URI    string `json:"uri"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
}

func toLocationJSON(loc types.Location) locationJSON {
	return locationJSON{URI: loc.URI, Line: loc.Line, Column: loc.Column, Offset: loc.Offset}
}

func (s *Server) handleFindDefinition(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params nameParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("find_definition", fmt.Errorf("invalid parameters: %w", err), nil)
	}
	if params.Name == "" {
		return createErrorResponse("find_definition", fmt.Errorf("name is required"), nil)
	}

	name := types.CanonicalName(params.Name)
	loc, ok := s.session.Index().FindDefinition(name)
	if !ok {
		suggestions := s.session.Index().SuggestNames(name, maxSuggestions)
		return createErrorResponse("find_definition",
			fmt.Errorf("no definition for %q", params.Name),
			map[string]interface{}{"suggestions": suggestions})
	}
	return createJSONResponse(map[string]interface{}{
		"success":  true,
		"name":     params.Name,
		"location": toLocationJSON(loc),
	})
}

func (s *Server) handleFindReferences(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params nameParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("find_references", fmt.Errorf("invalid parameters: %w", err), nil)
	}
	if params.Name == "" {
		return createErrorResponse("find_references", fmt.Errorf("name is required"), nil)
	}

	refs := s.session.Index().FindReferences(types.CanonicalName(params.Name))
	out := make([]locationJSON, 0, len(refs))
	for _, loc := range refs {
		out = append(out, toLocationJSON(loc))
	}
	return createJSONResponse(map[string]interface{}{
		"success":    true,
		"name":       params.Name,
		"count":      len(out),
		"references": out,
	})
}

func (s *Server) handleFindInvocations(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params invocationParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("find_invocations", fmt.Errorf("invalid parameters: %w", err), nil)
	}
	if params.Pattern == "" {
		return createErrorResponse("find_invocations", fmt.Errorf("pattern is required"), nil)
	}
	max := params.Max
	if max <= 0 {
		max = defaultMaxMatches
	}

	matches, err := s.session.Index().FindInvocations(params.Pattern)
	if err != nil {
		extra := map[string]interface{}{}
		var perr *wcierrors.QueryPatternError
		if errors.As(err, &perr) {
			extra["reason"] = perr.Reason
		}
		return createErrorResponse("find_invocations", err, extra)
	}

	truncated := false
	if len(matches) > max {
		matches = matches[:max]
		truncated = true
	}

	results := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		bindings := make(map[string]string)
		for _, name := range m.Bindings.Names() {
			if v, ok := m.Bindings.Get(name); ok {
				bindings[name] = v
			}
		}
		results = append(results, map[string]interface{}{
			"location": toLocationJSON(m.Payload),
			"bindings": bindings,
		})
	}
	return createJSONResponse(map[string]interface{}{
		"success":   true,
		"pattern":   params.Pattern,
		"count":     len(results),
		"truncated": truncated,
		"matches":   results,
	})
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.session.Status()
	return createJSONResponse(map[string]interface{}{
		"success":       true,
		"root":          st.Root,
		"uptime":        st.Uptime.String(),
		"files":         st.Files,
		"fragments":     st.Fragments,
		"cache_load":    st.CacheLoad,
		"cache_dir":     st.CacheDir,
		"cache_on_disk": st.CacheOnDisk,
		"watching":      st.Watching,
	})
}
