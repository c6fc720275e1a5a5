package collab

import "pieceServer/backend/internal/piecetable"

// RenderView：render index 的传输形式，Text 以字符串下发
type RenderView struct {
	Revision     uint64 `json:"revision"`
	Text         string `json:"text"`
	LineBreaks   []int  `json:"lineBreaks"`
	LineNumbers  []int  `json:"lineNumbers"`
	CursorLine   int    `json:"cursorLine"`
	CursorColumn int    `json:"cursorColumn"`
	Truncated    bool   `json:"truncated,omitempty"`
}

func NewRenderView(ri *piecetable.RenderIndex, rev uint64) RenderView {
	return RenderView{
		Revision:     rev,
		Text:         string(ri.Text),
		LineBreaks:   ri.LineBreaks,
		LineNumbers:  ri.LineNumbers,
		CursorLine:   ri.CursorLine,
		CursorColumn: ri.CursorColumn,
		Truncated:    ri.Truncated,
	}
}
