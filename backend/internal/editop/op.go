package editop

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInsert  Kind = "insert"
	KindDelete  Kind = "delete"
	KindSeek    Kind = "seek"
	KindLeft    Kind = "left"
	KindRight   Kind = "right"
	KindNewline Kind = "newline"
)

// Op 是一次按键级别的编辑，都作用在当前光标上
type Op struct {
	Kind   Kind   `json:"kind"`             // insert / delete / seek / left / right / newline
	Text   string `json:"text,omitempty"`   // insert 逐字节键入的内容
	Count  int    `json:"count,omitempty"`  // delete 退格次数，默认 1；left/right 步数
	Offset int    `json:"offset,omitempty"` // seek 的绝对偏移
}

// Batch：一次提交的按键序列，按顺序执行
// {"ops":[{"kind":"seek","offset":5},{"kind":"insert","text":"Hello"},{"kind":"delete","count":2}]}
type Batch []Op

var ErrInvalidOp = errors.New("INVALID_OP")

func (o Op) times() int {
	if o.Count <= 0 {
		return 1
	}
	return o.Count
}

// Validate 只检查格式，不关心文档当前内容
func (b Batch) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidOp)
	}
	for i, op := range b {
		switch op.Kind {
		case KindInsert:
			if op.Text == "" {
				return fmt.Errorf("%w: op %d inserts nothing", ErrInvalidOp, i)
			}
		case KindDelete, KindLeft, KindRight:
			if op.Count < 0 {
				return fmt.Errorf("%w: op %d has negative count %d", ErrInvalidOp, i, op.Count)
			}
		case KindSeek, KindNewline:
		default:
			return fmt.Errorf("%w: op %d has unknown kind %q", ErrInvalidOp, i, op.Kind)
		}
	}
	return nil
}

// InsertBytes 返回这一批会写进 add buffer 的字节数
func (b Batch) InsertBytes() int {
	n := 0
	for _, op := range b {
		switch op.Kind {
		case KindInsert:
			n += len(op.Text)
		case KindNewline:
			n++
		}
	}
	return n
}
