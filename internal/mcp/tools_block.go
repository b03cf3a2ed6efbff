package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"postcms/internal/domain"
	"postcms/internal/editor"
	"postcms/internal/richtext"
)

func (s *Server) registerBlockTools() {
	// ── list_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List the blocks of an open post in order, optionally filtered by type"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("type", mcp.Description("Filter by block type: heading, paragraph, image, video (optional)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListBlocks)

	// ── add_block ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_block",
		mcp.WithDescription("Add a block with default content. Inserted after afterId, or appended when afterId is omitted."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("type", mcp.Description("Block type: heading, paragraph, image, video"), mcp.Required()),
		mcp.WithString("afterId", mcp.Description("Insert after this block (optional)")),
	), s.handleAddBlock)

	// ── input_text ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("input_text",
		mcp.WithDescription("Replace the content of a heading or paragraph with inline HTML (b, i, u, span style). Ending a paragraph with / opens the slash palette."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("html", mcp.Description("New inline HTML content"), mcp.Required()),
	), s.handleInputText)

	// ── format_text ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("format_text",
		mcp.WithDescription("Apply an inline format to a character range of a text block"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("command",
			mcp.Description("bold, italic, underline, color, fontFamily, fontSize or clear"),
			mcp.Required(),
			mcp.Enum("bold", "italic", "underline", "color", "fontFamily", "fontSize", "clear"),
		),
		mcp.WithString("value", mcp.Description("Value for color, fontFamily and fontSize")),
		mcp.WithNumber("start", mcp.Description("Start offset in characters"), mcp.Required()),
		mcp.WithNumber("end", mcp.Description("End offset in characters (exclusive)"), mcp.Required()),
	), s.handleFormatText)

	// ── press_key ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("press_key",
		mcp.WithDescription("Press a key in a text block: Enter splits, Backspace in an empty block deletes it. While the slash palette is open, ArrowUp/ArrowDown/Enter/Escape drive the palette."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("key", mcp.Description("Key name: Enter, Backspace, Escape, ArrowUp, ArrowDown"), mcp.Required()),
		mcp.WithBoolean("shift", mcp.Description("Shift held")),
		mcp.WithBoolean("ctrl", mcp.Description("Ctrl held")),
	), s.handlePressKey)

	// ── delete_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("Delete a block. Deleting the last block leaves one empty paragraph."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Drag a block and drop it onto another block, taking that block's position"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block to move"), mcp.Required()),
		mcp.WithString("targetId", mcp.Description("Block to drop onto"), mcp.Required()),
	), s.handleMoveBlock)

	// ── slash_insert ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("slash_insert",
		mcp.WithDescription("Insert a block from the slash palette of a paragraph: heading-1, heading-2, text, image, video"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Paragraph owning the palette"), mcp.Required()),
		mcp.WithString("item", mcp.Description("Palette item ID"), mcp.Required()),
	), s.handleSlashInsert)

	// ── set_video_url ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_video_url",
		mcp.WithDescription("Set a video block's URL. YouTube and Vimeo links become embeds."),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Video or image block ID"), mcp.Required()),
		mcp.WithString("url", mcp.Description("Video page or file URL"), mcp.Required()),
	), s.handleSetVideoURL)

	// ── set_caption ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_caption",
		mcp.WithDescription("Set the caption of an image or video block"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("caption", mcp.Description("Caption text"), mcp.Required()),
	), s.handleSetCaption)

	// ── edit_externally ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("edit_externally",
		mcp.WithDescription("Export a text block's HTML to a file; saving that file updates the block"),
		mcp.WithString("postId", mcp.Description("Post ID"), mcp.Required()),
		mcp.WithString("blockId", mcp.Description("Heading or paragraph block ID"), mcp.Required()),
	), s.handleEditExternally)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	list := sess.Editor().Blocks()

	// Filter by type if provided
	if filterType := req.GetString("type", ""); filterType != "" {
		filtered := []blockSummary{}
		for _, b := range list {
			if string(b.Type) == filterType {
				filtered = append(filtered, summarizeBlock(b))
			}
		}
		return jsonResult(filtered)
	}
	return jsonResult(summarizeBlocks(list))
}

func (s *Server) handleAddBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockType, err := req.RequireString("type")
	if err != nil {
		return nil, err
	}
	b, err := sess.Editor().Document().AddBlock(domain.BlockType(blockType), req.GetString("afterId", ""))
	if err != nil {
		return nil, fmt.Errorf("add block: %w", err)
	}
	s.emitBlocksChanged(ctx, postID)
	return jsonResult(summarizeBlock(b))
}

func (s *Server) handleInputText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	markup, err := req.RequireString("html")
	if err != nil {
		return nil, err
	}
	ed := sess.Editor()
	if err := ed.Input(ctx, blockID, markup, editor.Point{}); err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, postID)

	b, _ := ed.Document().Block(blockID)
	out := map[string]any{"block": summarizeBlock(b)}
	if p := ed.Palette(); p.IsOpen() && p.Owner() == blockID {
		out["palette"] = p.Items()
	}
	return jsonResult(out)
}

func (s *Server) handleFormatText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	name, err := req.RequireString("command")
	if err != nil {
		return nil, err
	}
	cmd, err := richtext.ParseCommand(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sel := richtext.Selection{Start: req.GetInt("start", 0), End: req.GetInt("end", 0)}

	applied, err := sess.Editor().Format(ctx, blockID, cmd, req.GetString("value", ""), sel)
	if err != nil {
		return nil, err
	}
	if applied {
		s.emitBlocksChanged(ctx, postID)
	}
	b, _ := sess.Editor().Document().Block(blockID)
	return jsonResult(map[string]any{"applied": applied, "block": summarizeBlock(b)})
}

func (s *Server) handlePressKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	name, err := req.RequireString("key")
	if err != nil {
		return nil, err
	}
	key := editor.Key{Name: name, Shift: req.GetBool("shift", false), Ctrl: req.GetBool("ctrl", false)}

	handled, err := sess.Editor().KeyDown(ctx, blockID, key)
	if err != nil {
		return nil, err
	}
	if handled {
		s.emitBlocksChanged(ctx, postID)
	}
	return jsonResult(map[string]any{
		"handled": handled,
		"blocks":  summarizeBlocks(sess.Editor().Blocks()),
	})
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	if !sess.Editor().Document().RemoveBlock(blockID) {
		return mcp.NewToolResultError(fmt.Sprintf("block %s not found", blockID)), nil
	}
	s.emitBlocksChanged(ctx, postID)
	return textResult("deleted " + blockID), nil
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	targetID, err := req.RequireString("targetId")
	if err != nil {
		return nil, err
	}
	drag := sess.Editor().Drag()
	if !drag.Start(blockID) {
		return mcp.NewToolResultError(fmt.Sprintf("block %s not found", blockID)), nil
	}
	if !drag.Drop(targetID) {
		return mcp.NewToolResultError(fmt.Sprintf("cannot drop %s onto %s", blockID, targetID)), nil
	}
	s.emitBlocksChanged(ctx, postID)
	return jsonResult(sess.Editor().Document().IDs())
}

func (s *Server) handleSlashInsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	item, err := req.RequireString("item")
	if err != nil {
		return nil, err
	}
	ed := sess.Editor()
	if p := ed.Palette(); !p.IsOpen() || p.Owner() != blockID {
		if err := ed.OpenPalette(ctx, blockID, editor.Point{}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	b, err := ed.SelectPaletteItem(ctx, item)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.emitBlocksChanged(ctx, postID)
	return jsonResult(summarizeBlock(b))
}

func (s *Server) handleSetVideoURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	raw, err := req.RequireString("url")
	if err != nil {
		return nil, err
	}
	surface, err := sess.Editor().Media(blockID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := surface.SetURL(ctx, raw); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.emitBlocksChanged(ctx, postID)
	b, _ := sess.Editor().Document().Block(blockID)
	return jsonResult(summarizeBlock(b))
}

func (s *Server) handleSetCaption(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	caption := req.GetString("caption", "")
	surface, err := sess.Editor().Media(blockID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := surface.SetCaption(ctx, caption); err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, postID)
	b, _ := sess.Editor().Document().Block(blockID)
	return jsonResult(summarizeBlock(b))
}

func (s *Server) handleEditExternally(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, _, err := s.session(ctx, req)
	if err != nil {
		return toolError(err)
	}
	blockID, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	path, err := s.sessions.EditExternally(ctx, postID, blockID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textResult(filepath.Clean(path)), nil
}

// uploadFile opens path and uploads it into a media block, waiting for the
// upload to settle.
func (s *Server) uploadFile(ctx context.Context, ed *editor.Editor, blockID, path, contentType string) (editor.UploadResult, error) {
	surface, err := ed.Media(blockID)
	if err != nil {
		return editor.UploadResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return editor.UploadResult{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	task, err := surface.Upload(ctx, editor.File{Name: filepath.Base(path), ContentType: contentType, Body: f})
	if err != nil {
		return editor.UploadResult{}, err
	}
	return task.Wait(ctx)
}
