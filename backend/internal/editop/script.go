package editop

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseScript 把调试脚本解析成 Batch，命令之间用 ';' 分隔：
//
//	i:<text>  键入 text（\n 表示换行，\; 表示分号）
//	s:<n>     seek 到绝对偏移 n
//	d[:<n>]   退格 n 次，默认 1
//	l[:<n>]   左移，r[:<n>] 右移
//	n         换行
func ParseScript(script string) (Batch, error) {
	var b Batch
	for i, cmd := range splitScript(script) {
		if cmd == "" {
			continue
		}
		name, arg, hasArg := strings.Cut(cmd, ":")
		count := 0
		if hasArg && name != "i" {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("%w: command %d %q: %v", ErrInvalidOp, i, cmd, err)
			}
			count = n
		}
		switch name {
		case "i":
			b = append(b, Op{Kind: KindInsert, Text: strings.ReplaceAll(arg, `\n`, "\n")})
		case "s":
			if !hasArg {
				return nil, fmt.Errorf("%w: command %d: seek needs an offset", ErrInvalidOp, i)
			}
			b = append(b, Op{Kind: KindSeek, Offset: count})
		case "d":
			b = append(b, Op{Kind: KindDelete, Count: count})
		case "l":
			b = append(b, Op{Kind: KindLeft, Count: count})
		case "r":
			b = append(b, Op{Kind: KindRight, Count: count})
		case "n":
			b = append(b, Op{Kind: KindNewline})
		default:
			return nil, fmt.Errorf("%w: command %d: unknown %q", ErrInvalidOp, i, name)
		}
	}
	return b, b.Validate()
}

// splitScript 按未转义的 ';' 切分
func splitScript(s string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == ';':
			cur.WriteByte(';')
			i++
		case s[i] == ';':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(out, cur.String())
}
