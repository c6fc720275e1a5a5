package collab

import (
	"time"

	"pieceServer/backend/internal/editop"
)

const EventOpApplied = "OP_APPLIED"

// EditEvent：一批按键被应用之后发往 kafka 的事件，key 为 docID
type EditEvent struct {
	EventType    string       `json:"eventType"` // 固定 "OP_APPLIED"
	DocID        string       `json:"docId"`
	OperationID  string       `json:"operationId"`
	Revision     uint64       `json:"revision"`
	AuthorID     uint64       `json:"authorId"`
	ClientID     string       `json:"clientId"`
	ClientSeq    uint64       `json:"clientSeq"`
	BaseRevision uint64       `json:"baseRevision"`
	Ops          editop.Batch `json:"ops"`
	Cursor       int          `json:"cursor"`
	Length       int          `json:"length"`
	AppliedAt    time.Time    `json:"appliedAt"`
}
