package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/logging"
	"postcms/internal/service"
)

// Server is the MCP server for postcms.
// It exposes the post store and the block editor so AI agents can draft
// and edit posts the way an author would.
type Server struct {
	mcp      *server.MCPServer
	posts    *service.PostService
	media    *service.MediaService
	sessions *service.Sessions
	emitter  events.EventEmitter
	logger   *zap.Logger
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Posts    *service.PostService
	Media    *service.MediaService
	Sessions *service.Sessions
	Emitter  events.EventEmitter
	Logger   *zap.Logger
	Version  string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	s := &Server{
		posts:    deps.Posts,
		media:    deps.Media,
		sessions: deps.Sessions,
		emitter:  events.OrNop(deps.Emitter),
		logger:   logging.OrNop(deps.Logger).Named("mcp"),
	}
	version := deps.Version
	if version == "" {
		version = "1.0.0"
	}

	s.mcp = server.NewMCPServer(
		"postcms-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPostTools()
	s.registerBlockTools()
	s.registerMediaTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCPServer exposes the underlying server, e.g. for an HTTP transport.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// emitBlocksChanged notifies listeners that an agent changed a post's blocks.
func (s *Server) emitBlocksChanged(ctx context.Context, postID string) {
	s.emitter.Emit(ctx, "mcp:blocks-changed", map[string]string{"postId": postID})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// session returns the open editing session named by the postId argument,
// opening it on first use.
func (s *Server) session(ctx context.Context, req mcp.CallToolRequest) (string, *service.Session, error) {
	postID, err := req.RequireString("postId")
	if err != nil {
		return "", nil, err
	}
	sess, err := s.sessions.Open(ctx, postID)
	if err != nil {
		return "", nil, err
	}
	return postID, sess, nil
}

// toolError turns expected domain failures into a tool-level error result
// the agent can read, and passes anything else through.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidDocument),
		errors.Is(err, service.ErrSaveInProgress):
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}
