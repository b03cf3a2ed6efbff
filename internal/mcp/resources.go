package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	postsURI      = "cms://posts"
	postURIPrefix = "cms://post/"
	postHTMLSuffix = "/html"
)

func (s *Server) registerResources() {
	// ── cms://posts ────────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		postsURI,
		"All Posts",
		mcp.WithMIMEType("application/json"),
	), s.handlePostsResource)

	// ── cms://post/{postId}/html ───────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"cms://post/{postId}/html",
			"Rendered Post",
			mcp.WithTemplateMIMEType("text/html"),
		),
		s.handlePostHTMLResource,
	)
}

func (s *Server) handlePostsResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := s.posts.List(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal posts: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      postsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePostHTMLResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	postID := postIDFromURI(uri)
	if postID == "" {
		return nil, fmt.Errorf("could not extract postId from URI: %s", uri)
	}
	out, err := s.posts.Render(ctx, postID)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/html",
			Text:     out,
		},
	}, nil
}

// postIDFromURI extracts the id from "cms://post/{id}/html".
func postIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, postURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, postHTMLSuffix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
