package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pieceServer/backend/internal/collab"
)

const (
	presenceTTL   = 600 * time.Second
	submitTimeout = 200 * time.Millisecond
	writeWait     = 10 * time.Second
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string
	// 出站队列，由 writeLoop 独占写 socket
	send      chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once

	svc collab.Service
	// 限制同时进入 Submit 的连接数
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, 32),
		done:     make(chan struct{}),
		svc:      svc,
		sem:      sem,
	}
}

// SendMessage_Enqueue：队列满或连接已关闭时丢弃
func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("drop outbound message type=%s user=%d", msg.MessageType(), c.userID)
	}
}

func (c *Conn) reply(msg ServerMessage) { c.SendMessage_Enqueue(msg) }

func (c *Conn) fail(code string, err error) {
	log.Printf("%s (user=%d, doc=%s): %v", code, c.userID, c.docID, err)
	c.reply(ServerMessage{Type: "error", DocID: c.docID, Content: code + ": " + err.Error()})
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		if c.docID != "" {
			c.hub.Leave(c.docID, c)
			if err := c.hub.presence.RemoveMember(context.WithoutCancel(ctx), c.docID, c.userID); err != nil {
				log.Printf("remove member error: %v", err)
			}
		}
		c.close()
	}()
	for {
		var m ClientMessage
		if err := c.ws.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			}
			return
		}
		c.dispatch(ctx, m)
	}
}

func (c *Conn) dispatch(ctx context.Context, m ClientMessage) {
	switch m.Type {
	case TypeHeartbeat:
		if c.docID != "" {
			if err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
				log.Printf("add member error: %v", err)
			}
		}
		c.reply(ServerMessage{Type: "feedback", Content: "Heartbeat received"})
	case TypeCreateDocument:
		c.handleCreate(ctx, m)
	case TypeJoinDocument:
		c.handleJoin(ctx, m)
	case TypeShowAliveMembers:
		members, err := c.aliveMembers(ctx)
		if err != nil {
			c.fail("GET_MEMBERS_FAILED", err)
			return
		}
		c.reply(ServerMessage{Type: TypeShowAliveMembers, DocID: c.docID, Members: members})
	case TypeActiveDocuments:
		docs, err := c.hub.ActiveDocuments(ctx)
		if err != nil {
			c.fail("GET_DOCUMENTS_FAILED", err)
			return
		}
		c.reply(ServerMessage{Type: TypeActiveDocuments, Documents: docs})
	case TypeOpSubmit:
		c.handleOpSubmit(ctx, m)
	case TypeCursor:
		c.handleCursor(ctx, m)
	case TypeRender:
		ri, rev, err := c.svc.Render(ctx, c.target(m))
		if err != nil {
			c.fail("RENDER_FAILED", err)
			return
		}
		view := collab.NewRenderView(ri, rev)
		c.reply(ServerMessage{Type: TypeRender, DocID: c.target(m), Revision: rev, Render: &view})
	case TypeSaveDocument:
		if err := c.svc.SaveSnapshot(ctx, c.target(m)); err != nil {
			c.fail("SAVE_FAILED", err)
			return
		}
		c.reply(ServerMessage{Type: TypeSaveDocument, DocID: c.target(m), Content: "saved"})
	case TypeLoadContent:
		content, rev, err := c.svc.LoadDocumentContent(ctx, c.target(m))
		if err != nil {
			c.fail("LOAD_FAILED", err)
			return
		}
		c.reply(ServerMessage{Type: TypeLoadContent, DocID: c.target(m), Revision: rev, Content: content})
	default:
		c.reply(ServerMessage{Type: "ignored", Content: "Unknown message type"})
	}
}

// target：消息里带了 docId 就用它，否则用当前房间
func (c *Conn) target(m ClientMessage) string {
	if m.DocID != "" {
		return m.DocID
	}
	return c.docID
}

func (c *Conn) handleCreate(ctx context.Context, m ClientMessage) {
	docID, err := c.svc.CreateDocument(ctx, c.userID, m.DocTitle, []byte(m.Content))
	if err != nil {
		c.fail("CREATE_DOC_FAILED", err)
		return
	}
	c.reply(ServerMessage{Type: TypeCreateDocument, DocID: docID, Content: fmt.Sprintf("Document %s created by user %d", docID, c.userID)})
}

func (c *Conn) handleJoin(ctx context.Context, m ClientMessage) {
	docID := m.DocID
	if docID == "" && m.DocTitle != "" {
		id, err := c.svc.GetDocumentID(ctx, m.DocTitle)
		if err != nil {
			c.fail("GET_DOCID_FAILED", err)
			return
		}
		docID = id
	}
	if docID == "" {
		c.reply(ServerMessage{Type: "error", Content: "GET_DOCID_FAILED: docId or docTitle required"})
		return
	}
	rev, err := c.svc.OpenDocument(ctx, docID)
	if err != nil {
		c.fail("OPEN_DOC_FAILED", err)
		return
	}
	// 切换房间时先离开旧房间
	if c.docID != "" && c.docID != docID {
		c.hub.Leave(c.docID, c)
		_ = c.hub.presence.RemoveMember(ctx, c.docID, c.userID)
	}
	c.docID = docID
	c.hub.Join(docID, c)
	if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("add member error: %v", err)
	}
	c.reply(ServerMessage{Type: TypeJoinDocument, DocID: docID, Revision: rev,
		Content: fmt.Sprintf("Document %s joined by user %d", docID, c.userID)})
	if members, err := c.aliveMembers(ctx); err == nil {
		c.hub.BroadcastPresence(docID, members)
	}
}

func (c *Conn) aliveMembers(ctx context.Context) ([]PresenceMember, error) {
	members, err := c.hub.presence.GetAliveMembersWithNames(ctx, c.docID)
	if err != nil {
		return nil, err
	}
	out := make([]PresenceMember, len(members))
	for i, mb := range members {
		out[i] = PresenceMember{UserID: mb.UserID, Username: mb.Username}
	}
	return out, nil
}

func (c *Conn) handleOpSubmit(ctx context.Context, m ClientMessage) {
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.fail("SUBMIT_BUSY", err)
		return
	}
	defer c.sem.Release()

	docID := c.target(m)
	op, err := c.svc.Submit(submitCtx, docID, c.userID, m.BaseRevision, m.ClientID, m.ClientSeq, m.Ops)
	if err != nil {
		c.fail("SUBMIT_FAILED", err)
		return
	}
	c.SendMessage_Enqueue(OpAppliedMessage{
		Type:            "op_applied",
		DocID:           docID,
		BaseRevision:    m.BaseRevision,
		CurrentRevision: op.Revision,
		ClientID:        m.ClientID,
		ClientSeq:       m.ClientSeq,
		Result:          op.Result,
	})
	c.hub.BroadcastAppliedOp(docID, c, op, m.ClientSeq)
}

func (c *Conn) handleCursor(ctx context.Context, m ClientMessage) {
	if c.docID == "" {
		c.reply(ServerMessage{Type: "error", Content: "NOT_JOINED"})
		return
	}
	b, _ := json.Marshal(map[string]int{"cursor": m.Cursor})
	if err := c.hub.presence.SetCursor(ctx, c.docID, c.userID, b, presenceTTL); err != nil {
		log.Printf("set cursor error: %v", err)
	}
	c.hub.BroadcastCursor(c.docID, c, m.Cursor)
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Printf("write json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
