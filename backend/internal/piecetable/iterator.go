package piecetable

import "io"

var _ io.ByteReader = (*Iterator)(nil)

// Iterator 从文档开头按顺序逐字节遍历，只能前进，不能重来。
// 它不看光标；遍历期间 table 被编辑后结果未定义。
type Iterator struct {
	t *Table
	n int32
	i int
}

// Iter 返回一个从 head 开始的迭代器。不支持从文档中间开始。
func (t *Table) Iter() *Iterator {
	return &Iterator{t: t, n: t.head}
}

func (it *Iterator) Done() bool { return it.n == nilNode }

// Byte 返回当前字节。Done() 之后调用是调用方的错误，会 panic。
func (it *Iterator) Byte() byte {
	if it.n == nilNode {
		panic("piecetable: iterator read past end of document")
	}
	nd := it.t.nodes.at(it.n)
	return it.t.data(nd.piece)[it.i]
}

func (it *Iterator) Next() {
	if it.n == nilNode {
		return
	}
	nd := it.t.nodes.at(it.n)
	it.i++
	if it.i == nd.length {
		it.n = nd.next
		it.i = 0
	}
}

// ReadByte 实现 io.ByteReader，结束时返回 io.EOF
func (it *Iterator) ReadByte() (byte, error) {
	if it.Done() {
		return 0, io.EOF
	}
	c := it.Byte()
	it.Next()
	return c, nil
}
