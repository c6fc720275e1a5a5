// Package piecetable 实现按字节寻址的 piece table：
// 文档 = 若干 piece 按链表顺序拼接，每个 piece 引用 original 或 add 缓冲区的一段。
//
// 结构示例，初始文档 "Hello world"：
//
//	original = "Hello world", add = ""
//	[ (orig, start=0, length=11) ]
//
// 光标在 5 处依次键入 " big"：
//
//	add = " big"
//	[ (orig, 0, 5), (add, 0, 4), (orig, 5, 6) ]
//
// 连续键入只会延长同一个 add piece，不会产生新节点。
//
// Table 不做任何加锁，调用方必须保证同一时刻只有一个 goroutine 在编辑或遍历。
package piecetable

import (
	"fmt"
	"io"
	"log"
)

// checkedExecution 打开后每次编辑都会完整校验一遍内部结构，开销很大，只在排查问题时使用
const checkedExecution = false

type Options struct {
	// AddCapacity：add buffer 初始容量，默认 10
	AddCapacity int
	// MaxAddBytes：add buffer 的容量上限，0 表示不限制
	MaxAddBytes int
}

// cursorHint 缓存光标所在的 piece，避免每次编辑都从头扫描。
// 规范形式：local < length；只有在文档末尾时才允许 local == length。
type cursorHint struct {
	node  int32
	local int
	abs   int
}

type Table struct {
	// 调用方持有，table 只读不写
	original []byte
	add      addBuffer
	nodes    arena
	head     int32
	hint     cursorHint
	released bool
}

// Build 以 original 作为原始内容创建 table。original 不会被复制，
// 在 table 的整个生命周期内调用方都不能修改它。
func Build(original []byte, opt Options) *Table {
	t := &Table{
		original: original,
		add:      newAddBuffer(opt.AddCapacity, opt.MaxAddBytes),
		head:     nilNode,
		hint:     cursorHint{node: nilNode},
	}
	if len(original) > 0 {
		t.head = t.nodes.alloc(piece{src: sourceOriginal, start: 0, length: len(original)})
		t.hint = cursorHint{node: t.head}
	}
	return t
}

// Release 释放 add buffer 和所有 piece 节点，之后的编辑都会返回 ErrReleased
func (t *Table) Release() {
	t.original = nil
	t.add = addBuffer{}
	t.nodes = arena{}
	t.head = nilNode
	t.hint = cursorHint{node: nilNode}
	t.released = true
}

func (t *Table) Released() bool { return t.released }

// Len 返回文档总长度（字节）。没有维护长度计数器，每次都遍历求和。
func (t *Table) Len() int {
	n := 0
	for i := t.head; i != nilNode; i = t.nodes.at(i).next {
		n += t.nodes.at(i).length
	}
	return n
}

// Cursor 返回光标的绝对偏移
func (t *Table) Cursor() int { return t.hint.abs }

func (t *Table) data(p piece) []byte {
	if p.src == sourceAdd {
		return t.add.buf[p.start : p.start+p.length]
	}
	return t.original[p.start : p.start+p.length]
}

// setHint 设置光标并规范化：piece 末尾等价于下一个 piece 的开头
func (t *Table) setHint(n int32, local, abs int) {
	if n != nilNode {
		nd := t.nodes.at(n)
		if local == nd.length && nd.next != nilNode {
			n, local = nd.next, 0
		}
	}
	t.hint = cursorHint{node: n, local: local, abs: abs}
	if checkedExecution {
		if err := t.Validate(); err != nil {
			log.Panicf("piecetable: %v", err)
		}
	}
}

// checkHint 在任何结构修改之前检查光标是否可用
func (t *Table) checkHint() error {
	if t.released {
		return ErrReleased
	}
	h := t.hint
	if t.head == nilNode {
		if h.node != nilNode || h.local != 0 || h.abs != 0 {
			return fmt.Errorf("%w: empty document with cursor at %d", ErrInvariant, h.abs)
		}
		return nil
	}
	if !t.nodes.isLive(h.node) {
		return fmt.Errorf("%w: cursor references freed node %d", ErrInvariant, h.node)
	}
	if nd := t.nodes.at(h.node); h.local < 0 || h.local > nd.length {
		return fmt.Errorf("%w: cursor local offset %d outside piece of length %d", ErrInvariant, h.local, nd.length)
	}
	return nil
}

// Pieces 按文档顺序返回所有 piece
func (t *Table) Pieces() []PieceInfo {
	var out []PieceInfo
	for i := t.head; i != nilNode; i = t.nodes.at(i).next {
		nd := t.nodes.at(i)
		out = append(out, PieceInfo{Add: nd.src == sourceAdd, Start: nd.start, Length: nd.length})
	}
	return out
}

// Bytes 拼出完整文档
func (t *Table) Bytes() []byte {
	// 空文档也返回非 nil 的切片，nil 会被 mysql 驱动当成 NULL
	out := make([]byte, 0, t.Len())
	for i := t.head; i != nilNode; i = t.nodes.at(i).next {
		out = append(out, t.data(t.nodes.at(i).piece)...)
	}
	return out
}

func (t *Table) String() string { return string(t.Bytes()) }

// WriteTo 按 piece 顺序把文档写入 w，每个 piece 写一次
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i := t.head; i != nilNode; i = t.nodes.at(i).next {
		n, err := w.Write(t.data(t.nodes.at(i).piece))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Validate 检查全部不变量，返回第一个被破坏的
func (t *Table) Validate() error {
	if t.released {
		return ErrReleased
	}
	total, steps := 0, 0
	prev := nilNode
	seenHint := false
	for i := t.head; i != nilNode; {
		if !t.nodes.isLive(i) {
			return fmt.Errorf("%w: freed node %d linked into list", ErrInvariant, i)
		}
		if steps++; steps > len(t.nodes.nodes) {
			return fmt.Errorf("%w: cycle in piece list", ErrInvariant)
		}
		nd := t.nodes.at(i)
		if nd.prev != prev {
			return fmt.Errorf("%w: node %d prev=%d, want %d", ErrInvariant, i, nd.prev, prev)
		}
		if nd.length <= 0 {
			return fmt.Errorf("%w: node %d has length %d", ErrInvariant, i, nd.length)
		}
		limit := len(t.original)
		if nd.src == sourceAdd {
			limit = t.add.len()
		}
		if nd.start < 0 || nd.start+nd.length > limit {
			return fmt.Errorf("%w: node %d range [%d,%d) outside %s buffer of %d", ErrInvariant,
				i, nd.start, nd.start+nd.length, nd.src, limit)
		}
		if i == t.hint.node {
			seenHint = true
			h := t.hint
			if h.local < 0 || h.local > nd.length {
				return fmt.Errorf("%w: cursor local %d outside piece length %d", ErrInvariant, h.local, nd.length)
			}
			if h.local == nd.length && nd.next != nilNode {
				return fmt.Errorf("%w: cursor at end of node %d is not canonical", ErrInvariant, i)
			}
			if h.abs != total+h.local {
				return fmt.Errorf("%w: cursor abs %d, piece starts at %d local %d", ErrInvariant, h.abs, total, h.local)
			}
		}
		total += nd.length
		prev = i
		i = nd.next
	}
	if t.head == nilNode {
		if t.hint != (cursorHint{node: nilNode}) {
			return fmt.Errorf("%w: empty document with cursor %+v", ErrInvariant, t.hint)
		}
		return nil
	}
	if !seenHint {
		return fmt.Errorf("%w: cursor node %d not in list", ErrInvariant, t.hint.node)
	}
	return nil
}
