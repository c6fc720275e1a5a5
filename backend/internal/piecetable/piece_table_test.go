package piecetable

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkTable 校验不变量、文档内容和光标位置
func checkTable(t *testing.T, name string, tbl *Table, want string, cursor int) {
	t.Helper()
	if err := tbl.Validate(); err != nil {
		t.Fatalf("%s: Validate() = %v", name, err)
	}
	if got := tbl.String(); got != want {
		t.Fatalf("%s: String() = %q, want %q", name, got, want)
	}
	if got := tbl.Len(); got != len(want) {
		t.Fatalf("%s: Len() = %d, want %d", name, got, len(want))
	}
	if got := tbl.Cursor(); got != cursor {
		t.Fatalf("%s: Cursor() = %d, want %d", name, got, cursor)
	}
}

func typeString(t *testing.T, tbl *Table, s string) {
	t.Helper()
	for i := 0; i < len(s); i++ {
		if err := tbl.InsertByte(s[i]); err != nil {
			t.Fatalf("InsertByte(%q) error = %v", s[i], err)
		}
	}
}

func seek(t *testing.T, tbl *Table, off int) {
	t.Helper()
	if _, _, err := tbl.Seek(off); err != nil {
		t.Fatalf("Seek(%d) error = %v", off, err)
	}
}

func TestPieceTable_EmptyTypeHi(t *testing.T) {
	tbl := Build(nil, Options{})
	checkTable(t, "#0", tbl, "", 0)

	typeString(t, tbl, "hi")
	checkTable(t, "#1", tbl, "hi", 2)
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	tbl := Build([]byte("hi"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "X")
	checkTable(t, "#0", tbl, "hXi", 2)

	want := []PieceInfo{
		{Add: false, Start: 0, Length: 1},
		{Add: true, Start: 0, Length: 1},
		{Add: false, Start: 1, Length: 1},
	}
	if diff := cmp.Diff(want, tbl.Pieces()); diff != "" {
		t.Fatalf("Pieces() mismatch (-want +got):\n%s", diff)
	}
}

// 右半段必须从原 piece 的 start+local 开始，而不是 local
func TestPieceTable_SplitKeepsSourceOffset(t *testing.T) {
	tbl := Build([]byte("hello world"), Options{})
	seek(t, tbl, 6)
	typeString(t, tbl, "big ")
	checkTable(t, "#0", tbl, "hello big world", 10)

	seek(t, tbl, 8)
	typeString(t, tbl, "!")
	checkTable(t, "#1", tbl, "hello bi!g world", 9)
}

func TestPieceTable_BackspaceAtEnd(t *testing.T) {
	tbl := Build([]byte("hello"), Options{})
	seek(t, tbl, 5)
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	checkTable(t, "#0", tbl, "hell", 4)
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	checkTable(t, "#1", tbl, "hel", 3)
}

func TestPieceTable_NewlineRender(t *testing.T) {
	tbl := Build([]byte("ab"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "\n")
	checkTable(t, "#0", tbl, "a\nb", 2)

	ri, err := tbl.RebuildRenderIndex(Limits{})
	if err != nil {
		t.Fatalf("RebuildRenderIndex() error = %v", err)
	}
	if got := ri.Lines(); got != 2 {
		t.Fatalf("Lines() = %d, want 2", got)
	}
	if diff := cmp.Diff([]int{1}, ri.LineBreaks); diff != "" {
		t.Fatalf("LineBreaks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, ri.LineNumbers); diff != "" {
		t.Fatalf("LineNumbers mismatch (-want +got):\n%s", diff)
	}
	if ri.CursorLine != 2 || ri.CursorColumn != 0 {
		t.Fatalf("cursor = (%d, %d), want (2, 0)", ri.CursorLine, ri.CursorColumn)
	}
}

func TestPieceTable_EmptyBytesNotNil(t *testing.T) {
	tbl := Build(nil, Options{})
	if got := tbl.Bytes(); got == nil || len(got) != 0 {
		t.Fatalf("Build(nil).Bytes() = %#v, want empty non-nil slice", got)
	}

	tbl = Build([]byte("a"), Options{})
	seek(t, tbl, 1)
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	if got := tbl.Bytes(); got == nil || len(got) != 0 {
		t.Fatalf("Bytes() after deleting everything = %#v, want empty non-nil slice", got)
	}
}

func TestPieceTable_RenderTextLimit(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		cursor    int
		max       int
		wantText  string
		truncated bool
		line, col int
	}{
		{name: "cursor before cut", doc: "hello\nworld", cursor: 1, max: 4, wantText: "hell", truncated: true, line: 1, col: 1},
		{name: "cursor at cut", doc: "hello\nworld", cursor: 4, max: 4, wantText: "hell", truncated: true, line: 1, col: 4},
		// 光标在截断处之后时钉在截断处
		{name: "cursor past cut", doc: "hello\nworld", cursor: 8, max: 4, wantText: "hell", truncated: true, line: 1, col: 4},
		{name: "cursor past cut on second line", doc: "ab\ncdef", cursor: 7, max: 5, wantText: "ab\ncd", truncated: true, line: 2, col: 2},
		{name: "limit equals length", doc: "hello", cursor: 5, max: 5, wantText: "hello", truncated: false, line: 1, col: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Build([]byte(tt.doc), Options{})
			seek(t, tbl, tt.cursor)

			ri, err := tbl.RebuildRenderIndex(Limits{MaxTextBytes: tt.max})
			if tt.truncated {
				if !errors.Is(err, ErrBoundsExceeded) {
					t.Fatalf("RebuildRenderIndex() error = %v, want ErrBoundsExceeded", err)
				}
				if len(ri.Text) != tt.max {
					t.Fatalf("len(Text) = %d, want %d", len(ri.Text), tt.max)
				}
			} else if err != nil {
				t.Fatalf("RebuildRenderIndex() error = %v", err)
			}
			if ri.Truncated != tt.truncated {
				t.Fatalf("Truncated = %v, want %v", ri.Truncated, tt.truncated)
			}
			if got := string(ri.Text); got != tt.wantText {
				t.Fatalf("Text = %q, want %q", got, tt.wantText)
			}
			if ri.CursorLine != tt.line || ri.CursorColumn != tt.col {
				t.Fatalf("cursor = (%d, %d), want (%d, %d)", ri.CursorLine, ri.CursorColumn, tt.line, tt.col)
			}
			// 截断不影响文档本身
			checkTable(t, "after render", tbl, tt.doc, tt.cursor)
		})
	}
}

func TestPieceTable_RenderLineLimit(t *testing.T) {
	tbl := Build([]byte("a\nb\nc"), Options{})
	seek(t, tbl, 5)
	ri, err := tbl.RebuildRenderIndex(Limits{MaxLines: 2})
	if !errors.Is(err, ErrBoundsExceeded) || !ri.Truncated {
		t.Fatalf("RebuildRenderIndex() = (truncated=%v, %v), want ErrBoundsExceeded", ri.Truncated, err)
	}
	if got := string(ri.Text); got != "a\nb" || ri.Lines() != 2 {
		t.Fatalf("Text = %q, Lines() = %d", got, ri.Lines())
	}
	if ri.CursorLine != 2 || ri.CursorColumn != 1 {
		t.Fatalf("cursor = (%d, %d), want (2, 1)", ri.CursorLine, ri.CursorColumn)
	}
}

func TestPieceTable_TypingCoalesces(t *testing.T) {
	tbl := Build(nil, Options{})
	typeString(t, tbl, strings.Repeat("x", 100))
	checkTable(t, "#0", tbl, strings.Repeat("x", 100), 100)
	if got := len(tbl.Pieces()); got != 1 {
		t.Fatalf("len(Pieces()) = %d, want 1", got)
	}

	// 在原文中间连续键入：只多出左 / 新 / 右三段
	tbl = Build([]byte("hello"), Options{})
	seek(t, tbl, 2)
	typeString(t, tbl, strings.Repeat("y", 50))
	if got := len(tbl.Pieces()); got != 3 {
		t.Fatalf("len(Pieces()) = %d, want 3", got)
	}
}

func TestPieceTable_DeleteCases(t *testing.T) {
	cases := []struct {
		name   string
		seek   int
		want   string
		cursor int
		pieces []PieceInfo
	}{
		{"last byte", 6, "abcde", 5, []PieceInfo{{Start: 0, Length: 5}}},
		{"first byte", 1, "bcdef", 0, []PieceInfo{{Start: 1, Length: 5}}},
		{"interior", 3, "abdef", 2, []PieceInfo{{Start: 0, Length: 2}, {Start: 3, Length: 3}}},
		{"start of document", 0, "abcdef", 0, []PieceInfo{{Start: 0, Length: 6}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tbl := Build([]byte("abcdef"), Options{})
			seek(t, tbl, c.seek)
			if err := tbl.DeleteBeforeCursor(); err != nil {
				t.Fatalf("DeleteBeforeCursor() error = %v", err)
			}
			checkTable(t, c.name, tbl, c.want, c.cursor)
			if diff := cmp.Diff(c.pieces, tbl.Pieces()); diff != "" {
				t.Fatalf("Pieces() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPieceTable_DeleteSingleBytePiece(t *testing.T) {
	tbl := Build([]byte("ab"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "X")
	checkTable(t, "#0", tbl, "aXb", 2)

	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	checkTable(t, "#1", tbl, "ab", 1)
	if got := len(tbl.Pieces()); got != 2 {
		t.Fatalf("len(Pieces()) = %d, want 2", got)
	}

	// 删掉只有一个字节的尾部 piece，光标回到前一个 piece 末尾
	tbl = Build([]byte("a"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "z")
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	checkTable(t, "#2", tbl, "a", 1)
}

func TestPieceTable_DeleteToEmpty(t *testing.T) {
	tbl := Build(nil, Options{})
	typeString(t, tbl, "xy")
	for i := 0; i < 3; i++ {
		if err := tbl.DeleteBeforeCursor(); err != nil {
			t.Fatalf("DeleteBeforeCursor() error = %v", err)
		}
	}
	checkTable(t, "#0", tbl, "", 0)
	if got := tbl.Pieces(); got != nil {
		t.Fatalf("Pieces() = %v, want nil", got)
	}
	if got := tbl.Bytes(); got == nil || len(got) != 0 {
		t.Fatalf("Bytes() = %#v, want empty non-nil slice", got)
	}

	typeString(t, tbl, "q")
	checkTable(t, "#1", tbl, "q", 1)
}

func TestPieceTable_FreeListReuse(t *testing.T) {
	tbl := Build([]byte("ab"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "X")
	slots := len(tbl.nodes.nodes)
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	seek(t, tbl, 2)
	typeString(t, tbl, "Y")
	checkTable(t, "#0", tbl, "abY", 3)
	if got := len(tbl.nodes.nodes); got != slots {
		t.Fatalf("arena grew to %d slots, want %d", got, slots)
	}
}

func TestPieceTable_SeekClamp(t *testing.T) {
	tbl := Build([]byte("abc"), Options{})
	cases := []struct {
		off     int
		pos     int
		clamped bool
	}{
		{-4, 0, true},
		{2, 2, false},
		{99, 3, true},
		{3, 3, false},
		{0, 0, false},
	}
	for _, c := range cases {
		pos, clamped, err := tbl.Seek(c.off)
		if err != nil {
			t.Fatalf("Seek(%d) error = %v", c.off, err)
		}
		if pos != c.pos || clamped != c.clamped {
			t.Fatalf("Seek(%d) = (%d, %v), want (%d, %v)", c.off, pos, clamped, c.pos, c.clamped)
		}
		if err := tbl.Validate(); err != nil {
			t.Fatalf("Seek(%d): Validate() = %v", c.off, err)
		}
	}

	empty := Build(nil, Options{})
	if pos, clamped, _ := empty.Seek(5); pos != 0 || !clamped {
		t.Fatalf("empty Seek(5) = (%d, %v), want (0, true)", pos, clamped)
	}
}

func TestPieceTable_SeekAcrossPieces(t *testing.T) {
	tbl := Build([]byte("0123456789"), Options{})
	for _, off := range []int{2, 5, 8} {
		seek(t, tbl, off)
		typeString(t, tbl, "-")
	}
	want := "01-234-567-89"
	checkTable(t, "#0", tbl, want, 11)

	// 前后来回跳，每次都核对光标两侧的字节
	for _, off := range []int{0, 13, 4, 12, 1, 7, 6, 3, 13, 0} {
		seek(t, tbl, off)
		checkNeighbours(t, tbl, want)
	}
}

// checkNeighbours 在光标处键入再删除，确认光标两侧的字节与参照串一致
func checkNeighbours(t *testing.T, tbl *Table, ref string) {
	t.Helper()
	cur := tbl.Cursor()
	if cur < 0 || cur > len(ref) {
		t.Fatalf("cursor %d outside [0, %d]", cur, len(ref))
	}
	if err := tbl.InsertByte('#'); err != nil {
		t.Fatalf("InsertByte error = %v", err)
	}
	got := tbl.String()
	want := ref[:cur] + "#" + ref[cur:]
	if got != want {
		t.Fatalf("after insert at %d: String() = %q, want %q", cur, got, want)
	}
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor error = %v", err)
	}
	checkTable(t, "neighbours", tbl, ref, cur)
}

func TestPieceTable_InsertDeleteInverse(t *testing.T) {
	tbl := Build([]byte("piece table"), Options{})
	ref := "piece table"
	for off := 0; off <= len(ref); off++ {
		seek(t, tbl, off)
		checkNeighbours(t, tbl, ref)
	}
}

// 与一个独立维护的参照串比对的随机操作序列
func TestPieceTable_RandomAgainstReference(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	orig := []byte("The quick brown fox\njumps over\nthe lazy dog")
	tbl := Build(orig, Options{AddCapacity: 1})
	ref := []byte(string(orig))
	cursor := 0

	for step := 0; step < 5000; step++ {
		switch op := rnd.Intn(10); {
		case op < 5:
			c := "ab\nxyz"[rnd.Intn(6)]
			if err := tbl.InsertByte(c); err != nil {
				t.Fatalf("step %d: InsertByte error = %v", step, err)
			}
			ref = append(ref[:cursor], append([]byte{c}, ref[cursor:]...)...)
			cursor++
		case op < 8:
			if err := tbl.DeleteBeforeCursor(); err != nil {
				t.Fatalf("step %d: DeleteBeforeCursor error = %v", step, err)
			}
			if cursor > 0 {
				ref = append(ref[:cursor-1], ref[cursor:]...)
				cursor--
			}
		default:
			off := rnd.Intn(len(ref)+5) - 2
			pos, _, err := tbl.Seek(off)
			if err != nil {
				t.Fatalf("step %d: Seek error = %v", step, err)
			}
			cursor = min(max(off, 0), len(ref))
			if pos != cursor {
				t.Fatalf("step %d: Seek(%d) = %d, want %d", step, off, pos, cursor)
			}
		}

		if err := tbl.Validate(); err != nil {
			t.Fatalf("step %d: Validate() = %v", step, err)
		}
		if tbl.Cursor() != cursor {
			t.Fatalf("step %d: Cursor() = %d, want %d", step, tbl.Cursor(), cursor)
		}
		sum := 0
		for _, p := range tbl.Pieces() {
			if p.Length == 0 {
				t.Fatalf("step %d: zero-length piece in %v", step, tbl.Pieces())
			}
			sum += p.Length
		}
		if sum != len(ref) {
			t.Fatalf("step %d: sum of piece lengths = %d, want %d", step, sum, len(ref))
		}
	}
	if got := tbl.String(); got != string(ref) {
		t.Fatalf("String() = %q, want %q", got, ref)
	}
	if !bytes.Equal(orig, []byte("The quick brown fox\njumps over\nthe lazy dog")) {
		t.Fatalf("original buffer was modified: %q", orig)
	}
}

func TestPieceTable_AddCapacity(t *testing.T) {
	tbl := Build([]byte("ab"), Options{AddCapacity: 2, MaxAddBytes: 3})
	if err := tbl.InsertString("wxyz"); !errors.Is(err, ErrOutOfCapacity) {
		t.Fatalf("InsertString() error = %v, want ErrOutOfCapacity", err)
	}
	checkTable(t, "#0", tbl, "ab", 0)

	typeString(t, tbl, "xyz")
	checkTable(t, "#1", tbl, "xyzab", 3)
	if got := tbl.Available(); got != 0 {
		t.Fatalf("Available() = %d, want 0", got)
	}
	if err := tbl.InsertByte('!'); !errors.Is(err, ErrOutOfCapacity) {
		t.Fatalf("InsertByte() error = %v, want ErrOutOfCapacity", err)
	}
	checkTable(t, "#2", tbl, "xyzab", 3)
}

func TestPieceTable_Release(t *testing.T) {
	tbl := Build([]byte("abc"), Options{})
	tbl.Release()
	if !tbl.Released() {
		t.Fatalf("Released() = false after Release")
	}
	if err := tbl.InsertByte('x'); !errors.Is(err, ErrReleased) {
		t.Fatalf("InsertByte() error = %v, want ErrReleased", err)
	}
	if err := tbl.DeleteBeforeCursor(); !errors.Is(err, ErrReleased) {
		t.Fatalf("DeleteBeforeCursor() error = %v, want ErrReleased", err)
	}
	if _, _, err := tbl.Seek(1); !errors.Is(err, ErrReleased) {
		t.Fatalf("Seek() error = %v, want ErrReleased", err)
	}
	if _, err := tbl.RebuildRenderIndex(Limits{}); !errors.Is(err, ErrReleased) {
		t.Fatalf("RebuildRenderIndex() error = %v, want ErrReleased", err)
	}
}

func TestPieceTable_StaleHintRejected(t *testing.T) {
	tbl := Build([]byte("ab"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "X")
	// 人为制造一个指向已释放节点的光标
	stale := tbl.hint
	stale.node = tbl.nodes.at(tbl.hint.node).prev
	if err := tbl.DeleteBeforeCursor(); err != nil {
		t.Fatalf("DeleteBeforeCursor() error = %v", err)
	}
	before := tbl.Pieces()
	tbl.hint = stale
	if err := tbl.InsertByte('y'); !errors.Is(err, ErrInvariant) {
		t.Fatalf("InsertByte() error = %v, want ErrInvariant", err)
	}
	if diff := cmp.Diff(before, tbl.Pieces()); diff != "" {
		t.Fatalf("piece list changed after rejected insert (-want +got):\n%s", diff)
	}
}

func TestPieceTable_Iterator(t *testing.T) {
	tbl := Build([]byte("ac"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "b")
	seek(t, tbl, 0)

	got, err := io.ReadAll(readerFunc(tbl.Iter().ReadByte))
	if err != nil {
		t.Fatalf("ReadAll error = %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("iterated %q, want %q", got, "abc")
	}

	it := Build(nil, Options{}).Iter()
	if !it.Done() {
		t.Fatalf("Done() = false on empty table")
	}
	if _, err := it.ReadByte(); err != io.EOF {
		t.Fatalf("ReadByte() error = %v, want io.EOF", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("Byte() past end did not panic")
		}
	}()
	it.Byte()
}

type readerFunc func() (byte, error)

func (f readerFunc) Read(p []byte) (int, error) {
	for i := range p {
		c, err := f()
		if err != nil {
			return i, err
		}
		p[i] = c
	}
	return len(p), nil
}

func TestPieceTable_Dump(t *testing.T) {
	tbl := Build([]byte("ab"), Options{})
	seek(t, tbl, 1)
	typeString(t, tbl, "X")

	var plain bytes.Buffer
	if err := tbl.Dump(&plain, false); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if got := plain.String(); got != "a|X|b|" {
		t.Fatalf("Dump() = %q, want %q", got, "a|X|b|")
	}

	var colored bytes.Buffer
	_ = tbl.Dump(&colored, true)
	want := blueC + "a" + resetC + "|" + redC + "X" + resetC + "|" + blueC + "b" + resetC + "|"
	if got := colored.String(); got != want {
		t.Fatalf("Dump(color) = %q, want %q", got, want)
	}
}

func TestPieceTable_MoveLeftRight(t *testing.T) {
	tbl := Build([]byte("ab"), Options{})
	if err := tbl.MoveLeft(); err != nil {
		t.Fatalf("MoveLeft() error = %v", err)
	}
	checkTable(t, "#0", tbl, "ab", 0)
	for i := 0; i < 4; i++ {
		_ = tbl.MoveRight()
	}
	checkTable(t, "#1", tbl, "ab", 2)
	_ = tbl.MoveLeft()
	checkTable(t, "#2", tbl, "ab", 1)
}
