package piecetable

import "fmt"

// Limits 限制 render index 的规模，0 表示不限制
type Limits struct {
	MaxTextBytes int
	MaxLines     int
}

// RenderIndex 是给展示层用的只读投影，编辑之后不会自动更新，需要重新 RebuildRenderIndex
type RenderIndex struct {
	Text []byte `json:"text"`
	// 每个 '\n' 在 Text 中的偏移
	LineBreaks []int `json:"lineBreaks"`
	// 每一行的行号，从 1 开始
	LineNumbers []int `json:"lineNumbers"`
	// 光标所在行（从 1 开始）和列（从 0 开始，按字节）
	CursorLine   int  `json:"cursorLine"`
	CursorColumn int  `json:"cursorColumn"`
	Truncated    bool `json:"truncated,omitempty"`
}

func (ri *RenderIndex) Lines() int { return len(ri.LineNumbers) }

// Line 返回第 n 行（从 1 开始）的内容，不含换行符
func (ri *RenderIndex) Line(n int) []byte {
	if n < 1 || n > len(ri.LineNumbers) {
		return nil
	}
	start := 0
	if n > 1 {
		start = ri.LineBreaks[n-2] + 1
	}
	end := len(ri.Text)
	if n <= len(ri.LineBreaks) {
		end = ri.LineBreaks[n-1]
	}
	return ri.Text[start:end]
}

// RebuildRenderIndex 完整遍历一次文档，生成文本、换行位置、行号以及光标的 (行, 列)。
// 超出 lim 时返回截断后的结果（Truncated = true）和包装了 ErrBoundsExceeded 的错误；
// 此时光标被钉在截断处。
func (t *Table) RebuildRenderIndex(lim Limits) (*RenderIndex, error) {
	if t.released {
		return nil, ErrReleased
	}
	size := t.Len()
	if lim.MaxTextBytes > 0 && size > lim.MaxTextBytes {
		size = lim.MaxTextBytes
	}
	ri := &RenderIndex{
		Text:        make([]byte, 0, size),
		LineNumbers: []int{1},
	}
	cursor := t.hint.abs
	lastBreak := -1
	cursorSet := false
	var err error

	it := t.Iter()
	for pos := 0; !it.Done(); pos++ {
		if pos == cursor {
			ri.CursorLine = len(ri.LineNumbers)
			ri.CursorColumn = pos - lastBreak - 1
			cursorSet = true
		}
		if lim.MaxTextBytes > 0 && pos >= lim.MaxTextBytes {
			err = fmt.Errorf("%w: document longer than %d bytes", ErrBoundsExceeded, lim.MaxTextBytes)
			break
		}
		c := it.Byte()
		if c == '\n' {
			if lim.MaxLines > 0 && len(ri.LineNumbers) >= lim.MaxLines {
				err = fmt.Errorf("%w: more than %d lines", ErrBoundsExceeded, lim.MaxLines)
				break
			}
			ri.LineBreaks = append(ri.LineBreaks, pos)
			ri.LineNumbers = append(ri.LineNumbers, len(ri.LineNumbers)+1)
			lastBreak = pos
		}
		ri.Text = append(ri.Text, c)
		it.Next()
	}
	if err != nil {
		ri.Truncated = true
		if cursor > len(ri.Text) {
			cursorSet = false
		}
	}
	if !cursorSet {
		ri.CursorLine = len(ri.LineNumbers)
		ri.CursorColumn = len(ri.Text) - lastBreak - 1
	}
	return ri, err
}
