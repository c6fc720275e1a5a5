package cache

import (
	"fmt"
	"strconv"
)

// 键语义：
// - roomKey(docID):   房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):  房间内 userId→username 映射（Hash）
// - cursorKey:        某用户在某文档上的光标（String，JSON）
// - renderKey:        某文档某次打开（epoch）某版本的 render index（String，JSON）
//                      文档重新打开后 revision 会从快照版本重新计数，所以 key 里要带 epoch
//
// {docID:...} 是 cluster 的 hash tag，保证同一文档的键落在同一个 slot，Lua 脚本可以同时操作

const (
	keyRoomPrefix = "presence:room:"
	keyRoomFmt    = keyRoomPrefix + "{docID:%s}"
	keyNamesFmt   = "presence:names:{docID:%s}"
	keyCursorFmt  = "presence:cursor:{docID:%s}:%s"
	keyRenderFmt  = "render:{docID:%s}:%s:%d"
)

func roomKey(docID string) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }
func cursorKey(docID string, userID uint64) string {
	return fmt.Sprintf(keyCursorFmt, docID, strconv.FormatUint(userID, 10))
}
func renderKey(docID, epoch string, rev uint64) string {
	return fmt.Sprintf(keyRenderFmt, docID, epoch, rev)
}
