package piecetable

import "fmt"

// DeleteBeforeCursor 删除光标前的一个字节（退格）。光标在文档开头时什么都不做。
// 只移除或缩短 piece 的引用，original / add 缓冲区里的字节不会被抹掉。
func (t *Table) DeleteBeforeCursor() error {
	if err := t.checkHint(); err != nil {
		return err
	}
	h := t.hint
	if h.abs == 0 {
		return nil
	}

	n, local := h.node, h.local
	if local == 0 {
		// 光标在 piece 开头，要删的是前一个 piece 的最后一个字节
		prev := t.nodes.at(n).prev
		if prev == nilNode {
			return fmt.Errorf("%w: cursor at %d has no piece before it", ErrInvariant, h.abs)
		}
		n, local = prev, t.nodes.at(prev).length
	}
	abs := h.abs - 1
	p := t.nodes.at(n)

	switch {
	case p.length == 1:
		// 整个 piece 被删掉
		prev, next := p.prev, p.next
		if n == t.head {
			t.head = next
		}
		t.nodes.unlink(n)
		switch {
		case next != nilNode:
			t.setHint(next, 0, abs)
		case prev != nilNode:
			t.setHint(prev, t.nodes.at(prev).length, abs)
		default:
			t.hint = cursorHint{node: nilNode}
		}

	case local == p.length:
		p.length--
		t.setHint(n, p.length, abs)

	case local == 1:
		p.start++
		p.length--
		t.setHint(n, 0, abs)

	default:
		// 删除 piece 中间的字节：左段截到被删字节之前，右段从被删字节之后开始
		r := t.nodes.alloc(piece{src: p.src, start: p.start + local, length: p.length - local})
		p = t.nodes.at(n)
		p.length = local - 1
		t.nodes.spliceBetween(n, r, p.next)
		t.setHint(r, 0, abs)
	}
	return nil
}
