package piecetable

import "fmt"

// Seek 把光标移到绝对偏移 off。off 会被截到 [0, Len()]，clamped 报告是否发生了截断。
//
// 从当前光标所在的 piece 出发向前或向后走；目标离文档开头更近时直接从 head 开始。
// 最坏 O(piece 数)。
func (t *Table) Seek(off int) (pos int, clamped bool, err error) {
	if err := t.checkHint(); err != nil {
		return t.hint.abs, false, err
	}
	total := t.Len()
	if off < 0 {
		off, clamped = 0, true
	} else if off > total {
		off, clamped = total, true
	}
	if off == t.hint.abs || t.head == nilNode {
		return off, clamped, nil
	}

	n := t.hint.node
	start := t.hint.abs - t.hint.local
	if off < start-off {
		n, start = t.head, 0
	}
	// 往回走
	for off < start {
		n = t.nodes.at(n).prev
		if n == nilNode {
			return t.hint.abs, clamped, fmt.Errorf("%w: ran off list head seeking %d", ErrInvariant, off)
		}
		start -= t.nodes.at(n).length
	}
	// 往前走，停在包含 off 的 piece；off == total 时停在最后一个 piece
	for {
		nd := t.nodes.at(n)
		if off < start+nd.length || nd.next == nilNode {
			break
		}
		start += nd.length
		n = nd.next
	}
	t.setHint(n, off-start, off)
	return off, clamped, nil
}

// MoveLeft / MoveRight 把光标左右移动一个字节，已经在边界时不动
func (t *Table) MoveLeft() error {
	_, _, err := t.Seek(t.hint.abs - 1)
	return err
}

func (t *Table) MoveRight() error {
	_, _, err := t.Seek(t.hint.abs + 1)
	return err
}
