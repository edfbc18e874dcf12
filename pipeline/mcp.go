package pipeline

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the resolver and converter as MCP tools, so an
// agent can look up PMCIDs and convert article HTML without shelling out
// to the CLI.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	type resolveReq struct {
		PMID string `json:"pmid" jsonschema:"PubMed identifier (digits)"`
	}
	type resolveResp struct {
		PMID  string `json:"pmid"`
		PMCID string `json:"pmcid"`
	}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pubmark_resolve",
		Description: "Resolve a PMID to its PMCID via the NCBI ID converter.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in resolveReq) (*mcp.CallToolResult, resolveResp, error) {
		pmcid, err := p.cfg.Resolver.Resolve(ctx, in.PMID)
		if err != nil {
			return nil, resolveResp{}, err
		}
		return nil, resolveResp{PMID: in.PMID, PMCID: pmcid}, nil
	})

	type convertReq struct {
		HTML string `json:"html" jsonschema:"raw article HTML"`
	}
	type convertResp struct {
		Markdown string `json:"markdown"`
	}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "pubmark_convert",
		Description: "Convert PMC article HTML to structured markdown.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in convertReq) (*mcp.CallToolResult, convertResp, error) {
		md, err := p.cfg.Converter.Convert([]byte(in.HTML))
		if err != nil {
			return nil, convertResp{}, err
		}
		return nil, convertResp{Markdown: md}, nil
	})
}
