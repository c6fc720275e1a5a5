package ws

import (
	"time"

	"pieceServer/backend/internal/collab"
	"pieceServer/backend/internal/editop"
)

// 客户端消息类型
const (
	TypeHeartbeat        = "heartbeat"
	TypeCreateDocument   = "createDocument"
	TypeJoinDocument     = "joinDocument"
	TypeShowAliveMembers = "show_alive_members"
	TypeOpSubmit         = "op_submit"
	TypeCursor           = "cursor"
	TypeRender           = "render"
	TypeSaveDocument     = "saveDocument"
	TypeLoadContent      = "loadDocumentContent"
	TypeActiveDocuments  = "show_active_documents"
)

type ClientMessage struct {
	Type         string       `json:"type"`
	DocID        string       `json:"docId"`
	DocTitle     string       `json:"docTitle"`
	BaseRevision uint64       `json:"baseRevision"`
	ClientID     string       `json:"clientId"`
	ClientSeq    uint64       `json:"clientSeq"`
	Ops          editop.Batch `json:"ops"`
	// cursor 消息里客户端自己的光标位置（绝对偏移）
	Cursor  int    `json:"cursor,omitempty"`
	Content string `json:"content,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ServerMessage struct {
	Type     string             `json:"type"`
	UserID   uint64             `json:"userId,omitempty"`
	DocID    string             `json:"docId,omitempty"`
	Revision uint64             `json:"revision,omitempty"`
	Members  []PresenceMember   `json:"members,omitempty"`
	Cursor   *int               `json:"cursor,omitempty"`
	Render   *collab.RenderView `json:"render,omitempty"`
	Content  string             `json:"content,omitempty"`
	// show_active_documents 的结果
	Documents []string `json:"documents,omitempty"`
}

// op_submit 的 ack
type OpAppliedMessage struct {
	Type            string        `json:"type"` // 固定 "op_applied"
	DocID           string        `json:"docId"`
	BaseRevision    uint64        `json:"baseRevision"`
	CurrentRevision uint64        `json:"currentRevision"`
	ClientID        string        `json:"clientId"`
	ClientSeq       uint64        `json:"clientSeq"`
	Result          editop.Result `json:"result"`
}

// 推给同文档其他连接的“已应用操作”。收到后按顺序在本地重放 ops，revision 对齐
type OpBroadcastMessage struct {
	Type      string        `json:"type"` // 固定 "op_broadcast"
	DocID     string        `json:"docId"`
	Revision  uint64        `json:"revision"`
	AuthorID  uint64        `json:"authorId"`
	ClientID  string        `json:"clientId,omitempty"`
	ClientSeq uint64        `json:"clientSeq,omitempty"`
	Ops       editop.Batch  `json:"ops"`
	Result    editop.Result `json:"result"`
	AppliedAt time.Time     `json:"appliedAt"`
}

// 出站消息
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }
