package ws

import (
	"context"
	"sort"
	"sync"

	"pieceServer/backend/internal/cache"
	"pieceServer/backend/internal/collab"
)

type Hub struct {
	// 在线状态与光标落在 redis，Hub 只管本进程内的连接
	presence cache.PresenceCache
	mu       sync.RWMutex
	// docID -> 连接集合。一个用户可以开多个标签页，所以按连接而不是按 userID
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// peers 返回房间内除 except 以外的连接快照
func (h *Hub) peers(docID string, except *Conn) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// ActiveDocuments：所有副本上有在线成员的文档（来自 redis），本进程的房间也算上
func (h *Hub) ActiveDocuments(ctx context.Context) ([]string, error) {
	docs, err := h.presence.GetDocuments(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		seen[d] = struct{}{}
	}
	h.mu.RLock()
	for d := range h.rooms {
		seen[d] = struct{}{}
	}
	h.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (h *Hub) BroadcastPresence(docID string, members []PresenceMember) {
	msg := ServerMessage{Type: "presence", DocID: docID, Members: members}
	for _, c := range h.peers(docID, nil) {
		c.SendMessage_Enqueue(msg)
	}
}

func (h *Hub) BroadcastCursor(docID string, from *Conn, cursor int) {
	msg := ServerMessage{Type: TypeCursor, DocID: docID, UserID: from.userID, Cursor: &cursor}
	for _, c := range h.peers(docID, from) {
		c.SendMessage_Enqueue(msg)
	}
}

func (h *Hub) BroadcastAppliedOp(docID string, from *Conn, op collab.AppliedOp, clientSeq uint64) {
	msg := OpBroadcastMessage{
		Type:      "op_broadcast",
		DocID:     docID,
		Revision:  op.Revision,
		AuthorID:  op.AuthorID,
		ClientID:  op.ClientID,
		ClientSeq: clientSeq,
		Ops:       op.Ops,
		Result:    op.Result,
		AppliedAt: op.AppliedAt,
	}
	for _, c := range h.peers(docID, from) {
		c.SendMessage_Enqueue(msg)
	}
}
