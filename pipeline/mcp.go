package pipeline

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/kit"
)

// RegisterMCP registers extraction tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerDetectTool(srv)
	p.registerFormatsTool(srv)
	p.registerCacheStatsTool(srv)
	p.registerCacheClearTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- extract ---

type extractReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "textract_extract",
		Description: "Extract text, tables and metadata from a document file (pdf, docx, odt, xlsx, html, md, txt, csv, json, yaml, xml, archives, images).",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to extract"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		src, err := textract.FromFile(r.Path)
		if err != nil {
			return nil, err
		}
		return p.Extract(ctx, src, nil)
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(endpoint, kit.Logging(p.logger, tool.Name)), decodeInto[extractReq])
}

// --- detect ---

type detectReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "textract_detect",
		Description: "Detect the format of a document file from its content signature and filename.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to classify"},
		}, []string{"path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		src, err := textract.FromFile(r.Path)
		if err != nil {
			return nil, err
		}
		return p.Detect(src)
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(endpoint, kit.Logging(p.logger, tool.Name)), decodeInto[detectReq])
}

// --- formats ---

type formatsReq struct{}

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "textract_formats",
		Description: "List formats with a registered decoder.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": p.SupportedFormats()}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(endpoint, kit.Logging(p.logger, tool.Name)), decodeInto[formatsReq])
}

// --- cache ---

type cacheReq struct{}

func (p *Pipeline) registerCacheStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "textract_cache_stats",
		Description: "Return result-cache hit/miss counters and entry count.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return p.CacheStats(), nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(endpoint, kit.Logging(p.logger, tool.Name)), decodeInto[cacheReq])
}

func (p *Pipeline) registerCacheClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "textract_cache_clear",
		Description: "Empty the result cache and reset its counters.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		p.ClearCache()
		return map[string]any{"cleared": true}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(endpoint, kit.Logging(p.logger, tool.Name)), decodeInto[cacheReq])
}

// decodeInto builds a kit decode function for a typed request.
func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}
