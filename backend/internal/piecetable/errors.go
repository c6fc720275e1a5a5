package piecetable

import "errors"

var (
	// ErrOutOfCapacity：add buffer 无法继续增长，本次编辑没有生效
	ErrOutOfCapacity = errors.New("piecetable: add buffer out of capacity")

	// ErrBoundsExceeded：render index 超出了 Limits 的文本长度或行数限制
	ErrBoundsExceeded = errors.New("piecetable: render bounds exceeded")

	// ErrReleased：Release 之后继续使用 table
	ErrReleased = errors.New("piecetable: table released")

	// ErrInvariant 表示内部结构不一致，属于程序缺陷，不应被调用方恢复
	ErrInvariant = errors.New("piecetable: invariant violated")
)
