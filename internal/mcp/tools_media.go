package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerMediaTools() {
	// ── upload_media ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("upload_media",
		mcp.WithDescription("Upload a local image or video file into an image or video block"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Image or video block ID"), mcp.Required()),
		mcp.WithString("path", mcp.Description("Absolute path of the file to upload"), mcp.Required()),
		mcp.WithString("contentType", mcp.Description("MIME type (optional, guessed from the extension)")),
	), s.handleUploadMedia)

	// ── list_media ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_media",
		mcp.WithDescription("List uploaded media files"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListMedia)

	// ── sweep_media ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("sweep_media",
		mcp.WithDescription("Delete uploaded files no saved post references"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleSweepMedia)
}

func (s *Server) handleUploadMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	path, err := req.RequireString("path")
	if err != nil {
		return nil, err
	}

	res, err := s.uploadFile(ctx, sess.Editor(), blockID, path, req.GetString("contentType", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.emitBlocksChanged(ctx, postID)
	return jsonResult(res)
}

func (s *Server) handleListMedia(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.media.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (s *Server) handleSweepMedia(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.media.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(res)
}
