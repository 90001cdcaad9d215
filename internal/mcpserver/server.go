// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes aislemap tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/aislemap/internal/apperr"
	"github.com/starford/aislemap/internal/mapservice"
)

const (
	viewURI   = "aislemap://view"
	formatURI = "aislemap://document-format"
)

// Server wraps the MCP server with aislemap tools.
type Server struct {
	mcp *server.MCPServer
	svc *mapservice.Service
}

// New creates a new MCP server with all aislemap tools registered.
func New(svc *mapservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"aislemap",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_visible_markers",
		mcp.WithDescription("List the markers currently shown on the store map. "+
			"Without show-all this is one marker per selected category."),
	), s.listVisibleMarkers)

	s.mcp.AddTool(mcp.NewTool("list_selection",
		mcp.WithDescription("List the selected items grouped by name and category, with quantities."),
	), s.listSelection)

	s.mcp.AddTool(mcp.NewTool("add_selected_item",
		mcp.WithDescription("Add an item to the selection. The item shows up once the change feed delivers it."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Item name, e.g. Milk")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Item category, e.g. Dairy")),
		mcp.WithString("image_url", mcp.Description("Optional image URL")),
	), s.addSelectedItem)

	s.mcp.AddTool(mcp.NewTool("remove_selected_item",
		mcp.WithDescription("Remove one selected item by record id. The item is hidden at once and "+
			"restored if the store does not acknowledge the delete."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Selection record id")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the outcome (default true)")),
	), s.removeSelectedItem)

	s.mcp.AddTool(mcp.NewTool("toggle_show_all",
		mcp.WithDescription("Flip between showing every marker and only markers of selected categories."),
	), s.toggleShowAll)

	s.mcp.AddTool(mcp.NewTool("marker_image",
		mcp.WithDescription("Image URL shown when a marker is pressed."),
		mcp.WithString("marker_id", mcp.Required(), mcp.Description("Marker id")),
	), s.markerImage)

	s.mcp.AddTool(mcp.NewTool("get_document_format",
		mcp.WithDescription("Returns the document format of the Markers and SelectedItems collections."),
	), s.getDocumentFormat)

	s.mcp.AddResource(
		mcp.NewResource(viewURI, "Current View",
			mcp.WithResourceDescription("Visible markers, grouped selection and the show-all flag."),
			mcp.WithMIMEType("application/json"),
		),
		s.readViewResource,
	)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format",
			mcp.WithResourceDescription("Format of marker and selection documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listVisibleMarkers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.View(ctx).Visible), nil
}

func (s *Server) listSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.View(ctx).Grouped), nil
}

func (s *Server) addSelectedItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.AddItem(ctx, mapservice.AddItemRequest{
		Name:     name,
		Category: category,
		ImageURL: req.GetString("image_url", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) removeSelectedItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.RemoveItem(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !req.GetBool("wait", true) {
		return mcp.NewToolResultText(fmt.Sprintf("pending: %s (token %s)", id, p.Token)), nil
	}
	if err := p.Wait(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", id)), nil
}

func (s *Server) toggleShowAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v := s.svc.ToggleShowAll(ctx)
	return mcp.NewToolResultText(fmt.Sprintf("show_all: %t, visible markers: %d", v.ShowAll, len(v.Visible))), nil
}

func (s *Server) markerImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("marker_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := s.svc.MarkerImage(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no image for marker: %s", id)), nil
	}
	return mcp.NewToolResultText(url), nil
}

func (s *Server) getDocumentFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readViewResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.svc.View(ctx))
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      viewURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
