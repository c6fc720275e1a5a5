package piecetable

// defaultAddCapacity 与最初版本一致：从 10 字节起步，之后每次翻倍
const defaultAddCapacity = 10

// addBuffer：只追加的字节缓冲区，按时间顺序记录所有插入过的字节。
// 已分配的下标永远不会移动，也不会被改写。
type addBuffer struct {
	buf []byte
	// max 为 0 表示不限制
	max int
}

func newAddBuffer(capacity, max int) addBuffer {
	if capacity <= 0 {
		capacity = defaultAddCapacity
	}
	if max > 0 && capacity > max {
		capacity = max
	}
	return addBuffer{buf: make([]byte, 0, capacity), max: max}
}

// append 追加一个字节并返回它的稳定下标
func (a *addBuffer) append(c byte) (int, error) {
	if len(a.buf) == cap(a.buf) {
		if err := a.grow(); err != nil {
			return 0, err
		}
	}
	a.buf = append(a.buf, c)
	return len(a.buf) - 1, nil
}

// grow 容量翻倍；超过 max 时截到 max，已满则返回 ErrOutOfCapacity
func (a *addBuffer) grow() error {
	newCap := cap(a.buf) * 2
	if newCap == 0 {
		newCap = defaultAddCapacity
	}
	if a.max > 0 {
		if cap(a.buf) >= a.max {
			return ErrOutOfCapacity
		}
		if newCap > a.max {
			newCap = a.max
		}
	}
	nb := make([]byte, len(a.buf), newCap)
	copy(nb, a.buf)
	a.buf = nb
	return nil
}

// available 返回还能追加多少字节；-1 表示不限制
func (a *addBuffer) available() int {
	if a.max <= 0 {
		return -1
	}
	return a.max - len(a.buf)
}

func (a *addBuffer) len() int { return len(a.buf) }
