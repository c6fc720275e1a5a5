// ptdump 把一个文件当作原始内容装进 piece table，执行一段编辑脚本，
// 打印着色的 piece 列表和 render index 摘要。
//
//	ptdump -script 'i:&;s:37;i:new line\n;s:6;i:word ' notes.txt
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"pieceServer/backend/internal/editop"
	"pieceServer/backend/internal/piecetable"
)

const defaultScript = `i:&;s:37;i:i'm the last line\n;s:6;i:cheeseburgers `

func main() {
	script := flag.String("script", defaultScript, "edit script, commands separated by ';' (i:text s:n d[:n] l[:n] r[:n] n)")
	color := flag.Bool("color", true, "colour original pieces blue and add pieces red")
	maxAdd := flag.Int("max-add", 0, "add buffer limit in bytes, 0 = unlimited")
	maxLines := flag.Int("max-lines", 0, "render line limit, 0 = unlimited")
	maxText := flag.Int("max-text", 0, "render text limit in bytes, 0 = unlimited")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	original, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read file: %v", err)
	}
	batch, err := editop.ParseScript(*script)
	if err != nil {
		log.Fatalf("parse script: %v", err)
	}

	tbl := piecetable.Build(original, piecetable.Options{MaxAddBytes: *maxAdd})
	defer tbl.Release()

	res, err := editop.Apply(tbl, batch)
	if err != nil {
		log.Fatalf("apply script: %v", err)
	}
	if err := tbl.Validate(); err != nil {
		log.Fatalf("validate: %v", err)
	}

	if err := tbl.Dump(os.Stdout, *color); err != nil {
		log.Fatalf("dump: %v", err)
	}
	fmt.Println()

	ri, err := tbl.RebuildRenderIndex(piecetable.Limits{MaxTextBytes: *maxText, MaxLines: *maxLines})
	if err != nil && !errors.Is(err, piecetable.ErrBoundsExceeded) {
		log.Fatalf("render: %v", err)
	}
	fmt.Printf("pieces=%d length=%d cursor=%d lines=%d cursor_line=%d cursor_column=%d truncated=%v\n",
		len(tbl.Pieces()), res.Length, res.Cursor, ri.Lines(), ri.CursorLine, ri.CursorColumn, ri.Truncated)
	if err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}
