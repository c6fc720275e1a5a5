package editop

import (
	"fmt"

	"pieceServer/backend/internal/piecetable"
)

// Result：一批操作执行完之后的文档状态
type Result struct {
	Cursor  int  `json:"cursor"`
	Length  int  `json:"length"`
	Clamped bool `json:"clamped,omitempty"` // 有 seek 被截到了文档范围内
}

// Apply 在 t 上依次执行 b。
// 执行前先按 InsertBytes 检查 add buffer 余量，不够时整批拒绝，文档不变。
func Apply(t *piecetable.Table, b Batch) (Result, error) {
	if err := b.Validate(); err != nil {
		return Result{}, err
	}
	if avail := t.Available(); avail >= 0 && b.InsertBytes() > avail {
		return Result{}, fmt.Errorf("%w: batch needs %d bytes, %d left", piecetable.ErrOutOfCapacity, b.InsertBytes(), avail)
	}

	var res Result
	for i, op := range b {
		var err error
		switch op.Kind {
		case KindInsert:
			err = t.InsertString(op.Text)
		case KindNewline:
			err = t.InsertByte('\n')
		case KindDelete:
			for k := 0; k < op.times() && err == nil; k++ {
				err = t.DeleteBeforeCursor()
			}
		case KindSeek:
			var clamped bool
			_, clamped, err = t.Seek(op.Offset)
			res.Clamped = res.Clamped || clamped
		case KindLeft:
			_, _, err = t.Seek(t.Cursor() - op.times())
		case KindRight:
			_, _, err = t.Seek(t.Cursor() + op.times())
		}
		if err != nil {
			return res, fmt.Errorf("op %d (%s): %w", i, op.Kind, err)
		}
	}
	res.Cursor = t.Cursor()
	res.Length = t.Len()
	return res, nil
}
