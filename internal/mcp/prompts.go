package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("write_post",
		mcp.WithPromptDescription("Draft a new advisory post from a topic, block by block"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the post is about"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("audience",
			mcp.ArgumentDescription("Who the post is written for (optional)"),
		),
	), s.handleWritePostPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("polish_post",
		mcp.WithPromptDescription("Review an existing post and tighten its structure and formatting"),
		mcp.WithArgument("postId",
			mcp.ArgumentDescription("ID of the post to review"),
			mcp.RequiredArgument(),
		),
	), s.handlePolishPostPrompt)
}

func (s *Server) handleWritePostPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	audience := req.Params.Arguments["audience"]
	if audience == "" {
		audience = "policyholders with no insurance background"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Write a post about: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Write a post about "%s" for %s. Follow these steps:

1. Use create_post with a clear title. It starts with one empty paragraph.
2. Turn that paragraph into the opening with input_text.
3. Add sections with add_block (type "heading", then "paragraph") or slash_insert on an empty paragraph.
4. Emphasize key terms with format_text (bold or italic) on exact character ranges.
5. Add an image or video block only when you have a real file (upload_media) or link (set_video_url).
6. Check the result with render_post, then save_post with a short label.

Keep paragraphs short and plain.`, topic, audience),
				},
			},
		},
	}, nil
}

func (s *Server) handlePolishPostPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	postID := req.Params.Arguments["postId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Polish post %s", postID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Polish post %s. Follow these steps:

1. Read it with open_post and list_blocks.
2. Fix headings that skip levels and merge paragraphs that repeat each other.
3. Reorder sections with move_block where the flow is off, and delete empty blocks with delete_block.
4. Make sure every image and video has a caption (set_caption).
5. save_post with the label "polish". If the result is worse, list_revisions and restore_revision.`, postID),
				},
			},
		},
	}, nil
}
