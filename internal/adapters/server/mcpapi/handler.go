// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ycnlabs/prospect/internal/adapters/server/common"
	"github.com/ycnlabs/prospect/internal/app"
	"github.com/ycnlabs/prospect/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the lead board tools.
func NewHandler(cfg Config, svc common.LeadService) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("lead service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerLeadTools(mcpSrv, svc)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "prospect"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerLeadTools registers the `prospect.*` board tools.
func registerLeadTools(srv *mcpserver.MCPServer, svc common.LeadService) {
	columnValues := make([]string, 0, len(domain.Columns()))
	for _, column := range domain.Columns() {
		columnValues = append(columnValues, string(column))
	}

	srv.AddTool(
		mcp.NewTool(
			"prospect.list_leads",
			mcp.WithDescription("Refresh the lead board from the remote store and return every lead in board order."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			leads, err := common.ListLeads(ctx, svc)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"leads": leads})
			if err != nil {
				return nil, fmt.Errorf("encode list_leads result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"prospect.create_lead",
			mcp.WithDescription("Create a lead in the remote store and place it on the board."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Prospect name")),
			mcp.WithString("column", mcp.Description("Board column"), mcp.Enum(columnValues...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			column := domain.Column(req.GetString("column", string(domain.ColumnCold)))
			rating, err := column.Rating()
			if err != nil {
				return toolResultFromError(err), nil
			}
			lead, err := svc.CreateLead(ctx, name, rating)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(common.PayloadFromLead(lead))
			if err != nil {
				return nil, fmt.Errorf("encode create_lead result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"prospect.move_lead",
			mcp.WithDescription("Move a lead to another board column."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Lead identifier")),
			mcp.WithString("column", mcp.Required(), mcp.Description("Target column"), mcp.Enum(columnValues...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			column, err := req.RequireString("column")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := svc.MoveLead(ctx, id, domain.Column(column)); err != nil {
				return toolResultFromError(err), nil
			}
			lead, ok := svc.Board().Get(id)
			if !ok {
				return toolResultFromError(app.ErrLeadNotFound), nil
			}
			result, err := mcp.NewToolResultJSON(common.PayloadFromLead(lead))
			if err != nil {
				return nil, fmt.Errorf("encode move_lead result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"prospect.delete_lead",
			mcp.WithDescription("Delete a lead from the remote store and the board."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Lead identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := svc.DeleteLead(ctx, id); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"deleted": id})
			if err != nil {
				return nil, fmt.Errorf("encode delete_lead result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps coordinator errors onto structured tool failures.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, app.ErrAuthRequired):
		return mcp.NewToolResultError("auth_required: " + err.Error())
	case errors.Is(err, app.ErrLeadNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidColumn), errors.Is(err, domain.ErrInvalidID):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	default:
		return mcp.NewToolResultError("upstream_error: " + err.Error())
	}
}
