package piecetable

// InsertByte 在光标处插入一个字节，光标随后移到新字节之后。
//
// 三种情况：
//   - 光标正好在一个 add piece 的末尾，且这个 piece 紧挨着刚追加的字节：直接 length++（连续键入）
//   - 光标在 piece 边界：在边界处接入一个 1 字节的新 piece
//   - 光标在 piece 中间：把当前 piece 拆成左右两段，新 piece 放在中间
func (t *Table) InsertByte(c byte) error {
	if err := t.checkHint(); err != nil {
		return err
	}
	// 先写 add buffer，失败时链表还没动
	idx, err := t.add.append(c)
	if err != nil {
		return err
	}
	h := t.hint

	// 空文档
	if t.head == nilNode {
		n := t.nodes.alloc(piece{src: sourceAdd, start: idx, length: 1})
		t.head = n
		t.setHint(n, 1, 1)
		return nil
	}

	cur := t.nodes.at(h.node)
	if h.local == 0 || h.local == cur.length {
		left, right := cur.prev, h.node
		if h.local == cur.length {
			left, right = h.node, cur.next
		}
		if left != nilNode {
			lp := t.nodes.at(left)
			if lp.src == sourceAdd && lp.start+lp.length == idx {
				lp.length++
				t.setHint(left, lp.length, h.abs+1)
				return nil
			}
		}
		n := t.nodes.alloc(piece{src: sourceAdd, start: idx, length: 1})
		t.nodes.spliceBetween(left, n, right)
		if left == nilNode {
			t.head = n
		}
		t.setHint(n, 1, h.abs+1)
		return nil
	}

	// 在 piece 中间插入
	r := t.nodes.alloc(piece{src: cur.src, start: cur.start + h.local, length: cur.length - h.local})
	n := t.nodes.alloc(piece{src: sourceAdd, start: idx, length: 1})
	// alloc 可能让 arena 扩容，之前拿到的指针失效
	cur = t.nodes.at(h.node)
	cur.length = h.local
	t.nodes.spliceBetween(h.node, r, cur.next)
	t.nodes.spliceBetween(h.node, n, r)
	t.setHint(n, 1, h.abs+1)
	return nil
}

// InsertString 逐字节键入 s。容量不足时整体拒绝，不会只插入一部分。
func (t *Table) InsertString(s string) error {
	if t.released {
		return ErrReleased
	}
	if avail := t.add.available(); avail >= 0 && len(s) > avail {
		return ErrOutOfCapacity
	}
	for i := 0; i < len(s); i++ {
		if err := t.InsertByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// Available 返回 add buffer 还能接收的字节数，-1 表示不限制
func (t *Table) Available() int { return t.add.available() }
