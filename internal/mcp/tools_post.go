package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPostTools() {
	// ── list_posts ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List all posts, most recently updated first"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListPosts)

	// ── create_post ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a post with one empty paragraph and open it for editing"),
		mcp.WithString("title", mcp.Description("Post title"), mcp.Required()),
	), s.handleCreatePost)

	// ── open_post ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_post",
		mcp.WithDescription("Open a post for editing and return its blocks"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
	), s.handleOpenPost)

	// ── save_post ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_post",
		mcp.WithDescription("Save the open post's blocks and record a revision"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("label", mcp.Description("Revision label (optional)")),
		mcp.WithString("title", mcp.Description("New title (optional)")),
	), s.handleSavePost)

	// ── close_post ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("close_post",
		mcp.WithDescription("Close the editing session of a post, discarding unsaved edits"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
	), s.handleClosePost)

	// ── delete_post (destructive) ──────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_post",
		mcp.WithDescription("DESTRUCTIVE: Delete a post and its revision history"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeletePost)

	// ── render_post ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("render_post",
		mcp.WithDescription("Render a post to read-only HTML. Renders unsaved edits when the post is open."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithBoolean("saved", mcp.Description("Render the stored version even if the post is open (default false)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleRenderPost)

	// ── list_revisions ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_revisions",
		mcp.WithDescription("List the saved revisions of a post, oldest first"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListRevisions)

	// ── restore_revision ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("restore_revision",
		mcp.WithDescription("Restore a post's blocks from a revision. Unsaved edits in an open session are dropped."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("revisionId", mcp.Description("Revision ID"), mcp.Required()),
	), s.handleRestoreRevision)
}

func boolPtr(v bool) *bool { return &v }

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(posts)
}

func (s *Server) handleCreatePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return nil, err
	}
	p, err := s.posts.Create(ctx, title)
	if err != nil {
		return toolError(err)
	}
	sess, err := s.sessions.Open(ctx, p.ID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{
		"id":     p.ID,
		"title":  p.Title,
		"slug":   p.Slug,
		"blocks": summarizeBlocks(sess.Editor().Blocks()),
	})
}

func (s *Server) handleOpenPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	p := sess.Post()
	return jsonResult(map[string]any{
		"id":        p.ID,
		"title":     p.Title,
		"slug":      p.Slug,
		"updatedAt": p.UpdatedAt,
		"blocks":    summarizeBlocks(p.Blocks),
	})
}

func (s *Server) handleSavePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, _, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	if title := req.GetString("title", ""); title != "" {
		if err := s.sessions.SetTitle(postID, title); err != nil {
			return toolError(err)
		}
	}
	p, rev, err := s.sessions.Save(ctx, postID, req.GetString("label", ""))
	if err != nil {
		return toolError(err)
	}
	out := map[string]any{
		"id":        p.ID,
		"slug":      p.Slug,
		"updatedAt": p.UpdatedAt,
		"blocks":    len(p.Blocks),
	}
	if rev != nil {
		out["revisionId"] = rev.ID
	}
	return jsonResult(out)
}

func (s *Server) handleClosePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := req.RequireString("postId")
	if err != nil {
		return nil, err
	}
	s.sessions.Discard(postID)
	return textResult("closed " + postID), nil
}

func (s *Server) handleDeletePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := req.RequireString("postId")
	if err != nil {
		return nil, err
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return toolError(err)
	}
	s.sessions.Discard(postID)
	return textResult("deleted " + postID), nil
}

func (s *Server) handleRenderPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := req.RequireString("postId")
	if err != nil {
		return nil, err
	}
	if sess, ok := s.sessions.Get(postID); ok && !req.GetBool("saved", false) {
		p := sess.Post()
		// Unsaved blocks must not be served from the cache entry of the
		// stored version.
		p.UpdatedAt = time.Time{}
		return textResult(s.posts.RenderPost(ctx, &p)), nil
	}
	html, err := s.posts.Render(ctx, postID)
	if err != nil {
		return toolError(err)
	}
	return textResult(html), nil
}

func (s *Server) handleListRevisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := req.RequireString("postId")
	if err != nil {
		return nil, err
	}
	h, err := s.posts.History(ctx, postID)
	if err != nil {
		return toolError(err)
	}
	type revisionSummary struct {
		ID        string    `json:"id"`
		ParentID  string    `json:"parentId,omitempty"`
		Label     string    `json:"label,omitempty"`
		Current   bool      `json:"current,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}
	out := []revisionSummary{}
	if h != nil {
		for _, r := range h.Revisions {
			rs := revisionSummary{ID: r.ID, Label: r.Label, Current: r.ID == h.CurrentID, CreatedAt: r.CreatedAt}
			if r.ParentID != nil {
				rs.ParentID = *r.ParentID
			}
			out = append(out, rs)
		}
	}
	return jsonResult(out)
}

func (s *Server) handleRestoreRevision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := req.RequireString("postId")
	if err != nil {
		return nil, err
	}
	revisionID, err := req.RequireString("revisionId")
	if err != nil {
		return nil, err
	}
	p, err := s.posts.Restore(ctx, postID, revisionID)
	if err != nil {
		return toolError(err)
	}
	if err := s.sessions.Reload(ctx, postID); err != nil {
		return toolError(err)
	}
	s.emitBlocksChanged(ctx, postID)
	return jsonResult(map[string]any{
		"id":     p.ID,
		"blocks": summarizeBlocks(p.Blocks),
	})
}
