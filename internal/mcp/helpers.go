package mcpserver

import "postcms/internal/domain"

// blockSummary is the agent-facing view of a block.
type blockSummary struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Level   int    `json:"level,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
	IsEmbed bool   `json:"isEmbed,omitempty"`
}

func summarizeBlock(b domain.Block) blockSummary {
	sum := blockSummary{ID: b.ID, Type: string(b.Type)}
	switch b.Type {
	case domain.BlockTypeHeading:
		if d, err := domain.DecodeData[domain.HeadingData](b); err == nil {
			sum.Text, sum.HTML = d.Text, d.HTML
		}
		if st, err := domain.DecodeStyle[domain.HeadingStyle](b); err == nil {
			sum.Level = st.ClampedLevel()
		}
	case domain.BlockTypeParagraph:
		if d, err := domain.DecodeData[domain.ParagraphData](b); err == nil {
			sum.Text, sum.HTML = d.Text.PlainText(), d.HTML
		}
	case domain.BlockTypeImage:
		if d, err := domain.DecodeData[domain.ImageData](b); err == nil {
			sum.URL, sum.Caption = d.URL, d.Caption
		}
	case domain.BlockTypeVideo:
		if d, err := domain.DecodeData[domain.VideoData](b); err == nil {
			sum.URL, sum.Caption, sum.IsEmbed = d.URL, d.Caption, d.IsEmbed
		}
	}
	return sum
}

func summarizeBlocks(list []domain.Block) []blockSummary {
	out := make([]blockSummary, len(list))
	for i, b := range list {
		out[i] = summarizeBlock(b)
	}
	return out
}
