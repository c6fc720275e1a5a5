package piecetable

type source uint8

const (
	//iota：original = 0, add = 1
	sourceOriginal source = iota
	sourceAdd
)

func (s source) String() string {
	if s == sourceAdd {
		return "add"
	}
	return "original"
}

// nilNode 表示链表边界（没有前驱 / 后继）
const nilNode int32 = -1

type piece struct {
	// 从 original 还是 add 缓冲区取数据
	src    source
	start  int
	length int
}

// node 是 arena 里的一个槽位。prev/next 是下标而不是指针，
// 释放后的槽位进入 free list 复用。
type node struct {
	piece
	prev, next int32
	live       bool
}

// arena：所有 piece 节点的存储
type arena struct {
	nodes []node
	free  []int32
}

func (a *arena) alloc(p piece) int32 {
	n := node{piece: p, prev: nilNode, next: nilNode, live: true}
	if k := len(a.free); k > 0 {
		idx := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[idx] = n
		return idx
	}
	a.nodes = append(a.nodes, n)
	return int32(len(a.nodes) - 1)
}

func (a *arena) release(idx int32) {
	a.nodes[idx] = node{prev: nilNode, next: nilNode}
	a.free = append(a.free, idx)
}

func (a *arena) at(idx int32) *node { return &a.nodes[idx] }

func (a *arena) isLive(idx int32) bool {
	return idx >= 0 && int(idx) < len(a.nodes) && a.nodes[idx].live
}

// spliceBetween 把 n 接到 before 和 after 之间（before/after 可以是 nilNode）。
// before <-> after  变成  before <-> n <-> after
func (a *arena) spliceBetween(before, n, after int32) {
	nd := a.at(n)
	nd.prev = before
	nd.next = after
	if before != nilNode {
		a.at(before).next = n
	}
	if after != nilNode {
		a.at(after).prev = n
	}
}

// unlink 把 n 从链表中摘掉并回收槽位
func (a *arena) unlink(n int32) {
	nd := a.at(n)
	if nd.prev != nilNode {
		a.at(nd.prev).next = nd.next
	}
	if nd.next != nilNode {
		a.at(nd.next).prev = nd.prev
	}
	a.release(n)
}

// PieceInfo 是 piece 的只读视图，用于调试与测试
type PieceInfo struct {
	Add    bool
	Start  int
	Length int
}
