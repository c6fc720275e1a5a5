package piecetable

import (
	"bufio"
	"io"
)

const (
	redC   = "\x1b[31m"
	blueC  = "\x1b[34m"
	resetC = "\x1b[0m"
)

// Dump 按顺序打印每个 piece 的内容，用 '|' 分隔。
// color 为 true 时 original 用蓝色、add 用红色。
func (t *Table) Dump(w io.Writer, color bool) error {
	bw := bufio.NewWriter(w)
	for i := t.head; i != nilNode; i = t.nodes.at(i).next {
		nd := t.nodes.at(i)
		if color {
			if nd.src == sourceAdd {
				bw.WriteString(redC)
			} else {
				bw.WriteString(blueC)
			}
		}
		bw.Write(t.data(nd.piece))
		if color {
			bw.WriteString(resetC)
		}
		bw.WriteByte('|')
	}
	return bw.Flush()
}
