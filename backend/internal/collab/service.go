package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"pieceServer/backend/internal/editop"
	"pieceServer/backend/internal/piecetable"
)

// 文档编辑服务接口
type Service interface {
	CreateDocument(ctx context.Context, ownerID uint64, title string, content []byte) (string, error)
	GetDocumentID(ctx context.Context, title string) (string, error)

	// OpenDocument 把文档加载进内存（优先用最新快照），返回当前版本
	OpenDocument(ctx context.Context, docID string) (uint64, error)
	CloseDocument(ctx context.Context, docID string) error

	Submit(ctx context.Context, docID string, authorID uint64,
		baseRevision uint64, clientID string, clientSeq uint64,
		ops editop.Batch) (AppliedOp, error)

	CurrentRevision(ctx context.Context, docID string) (uint64, error)
	// 用于握手/追平
	OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error)

	Render(ctx context.Context, docID string) (*piecetable.RenderIndex, uint64, error)
	LoadDocumentContent(ctx context.Context, docID string) (string, uint64, error)
	SaveSnapshot(ctx context.Context, docID string) error
}

// Snapshot：某个版本的完整文档内容
type Snapshot struct {
	DocID    string
	Revision uint64
	Content  []byte
}

type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content []byte) error
	// 没有快照时返回 ErrNoSnapshot
	LatestSnapshot(ctx context.Context, docID string) (Snapshot, error)
}

type DocumentStore interface {
	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string, content []byte) (string, error)
	// 创建文档时的原始内容
	LoadOriginal(ctx context.Context, docID string) ([]byte, error)
}

// RenderCache：按 (docID, epoch, revision) 缓存 render index，build 只在缓存未命中时调用。
// epoch 每次打开文档都不同，关闭重开或多副本之间不会串用旧内容
type RenderCache interface {
	GetOrBuild(ctx context.Context, docID, epoch string, rev uint64,
		build func() (*piecetable.RenderIndex, error)) (*piecetable.RenderIndex, error)
}

// EventSink：编辑事件出口，通常是 KafkaDispatcher
type EventSink interface {
	Enqueue(ctx context.Context, evt EditEvent) error
}

type AppliedOp struct {
	OperationID string        `json:"operationId"` // 本次操作的唯一ID（用于幂等/追踪）
	Revision    uint64        `json:"revision"`
	AuthorID    uint64        `json:"authorId"`
	ClientID    string        `json:"clientId"`
	Ops         editop.Batch  `json:"ops"`
	Result      editop.Result `json:"result"`
	AppliedAt   time.Time     `json:"appliedAt"`
}

var (
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	ErrDocumentNotOpen       = errors.New("DOCUMENT_NOT_OPEN")
	ErrNoSnapshot            = errors.New("no snapshot")
	ErrStoreNotInitialized   = errors.New("store not initialized")
)

type Options struct {
	Table  piecetable.Options
	Render piecetable.Limits
	// 近期操作环形缓冲容量
	RingCap int
	// DumpPieces 为 true 时每次提交后把 piece 列表打到日志里
	DumpPieces bool
	// 事件入队的最长等待
	EnqueueTimeout time.Duration
}

// docState：一个打开的文档。mu 保证同一时刻只有一个 goroutine 在编辑或遍历 table
type docState struct {
	mu       sync.RWMutex
	epoch    string
	revision uint64
	opsRing  []AppliedOp
	// 去重窗口：某 clientID 最近的最大 clientSeq
	lastSeqByClient map[string]uint64
	// table 引用 original，original 在文档关闭前不能被修改
	original []byte
	table    *piecetable.Table
}

// closed 在持有 ds.mu 时调用：lookup 之后、拿锁之前文档可能已被 CloseDocument 释放
func (ds *docState) closed(docID string) error {
	if ds.table.Released() {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, docID)
	}
	return nil
}

var _ Service = (*InMemoryService)(nil)

// InMemoryService：持有所有已打开文档的状态
type InMemoryService struct {
	mu   sync.RWMutex
	docs map[string]*docState
	opt  Options

	// 依赖注入，实现在 store / cache 中
	snapshots SnapshotStore
	documents DocumentStore
	renders   RenderCache
	events    EventSink
}

func NewInMemoryService(snapshots SnapshotStore, documents DocumentStore, renders RenderCache, events EventSink, opt Options) *InMemoryService {
	if opt.RingCap <= 0 {
		opt.RingCap = 1024
	}
	if opt.EnqueueTimeout <= 0 {
		opt.EnqueueTimeout = 200 * time.Millisecond
	}
	return &InMemoryService{
		docs:      make(map[string]*docState),
		opt:       opt,
		snapshots: snapshots,
		documents: documents,
		renders:   renders,
		events:    events,
	}
}

func (s *InMemoryService) lookup(docID string) (*docState, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, docID)
	}
	return ds, nil
}

func (s *InMemoryService) CreateDocument(ctx context.Context, ownerID uint64, title string, content []byte) (string, error) {
	if s.documents == nil {
		return "", ErrStoreNotInitialized
	}
	return s.documents.CreateDocument(ctx, ownerID, title, content)
}

func (s *InMemoryService) GetDocumentID(ctx context.Context, title string) (string, error) {
	if s.documents == nil {
		return "", ErrStoreNotInitialized
	}
	return s.documents.GetDocumentID(ctx, title)
}

func (s *InMemoryService) OpenDocument(ctx context.Context, docID string) (uint64, error) {
	if ds, err := s.lookup(docID); err == nil {
		ds.mu.RLock()
		defer ds.mu.RUnlock()
		return ds.revision, nil
	}

	original, rev, err := s.loadLatest(ctx, docID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 并发打开同一个文档时只保留先到的那份
	if ds := s.docs[docID]; ds != nil {
		return ds.revision, nil
	}
	s.docs[docID] = &docState{
		epoch:           newEpoch(),
		revision:        rev,
		opsRing:         make([]AppliedOp, 0, s.opt.RingCap),
		lastSeqByClient: make(map[string]uint64),
		original:        original,
		table:           piecetable.Build(original, s.opt.Table),
	}
	log.Printf("document opened doc=%s rev=%d bytes=%d", docID, rev, len(original))
	return rev, nil
}

// newEpoch：标识文档的一次打开，render 缓存 key 的一部分
func newEpoch() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(uint64(rand.Uint32()), 36)
}

// loadLatest：有快照用快照，否则用创建时的原始内容
func (s *InMemoryService) loadLatest(ctx context.Context, docID string) ([]byte, uint64, error) {
	if s.snapshots != nil {
		snap, err := s.snapshots.LatestSnapshot(ctx, docID)
		if err == nil {
			return snap.Content, snap.Revision, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			return nil, 0, err
		}
	}
	if s.documents == nil {
		return nil, 0, ErrStoreNotInitialized
	}
	original, err := s.documents.LoadOriginal(ctx, docID)
	if err != nil {
		return nil, 0, err
	}
	return original, 0, nil
}

func (s *InMemoryService) CloseDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	ds := s.docs[docID]
	delete(s.docs, docID)
	s.mu.Unlock()
	if ds == nil {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, docID)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.table.Release()
	ds.original = nil
	return nil
}

// Submit 在文档上执行一批按键。版本或 clientSeq 不对时拒绝，文档不变。
func (s *InMemoryService) Submit(ctx context.Context, docID string, authorID uint64, baseRevision uint64, clientID string, clientSeq uint64, ops editop.Batch) (AppliedOp, error) {
	ds, err := s.lookup(docID)
	if err != nil {
		return AppliedOp{}, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.closed(docID); err != nil {
		return AppliedOp{}, err
	}

	// 幂等/去重：只接受递增的 clientSeq
	if last, ok := ds.lastSeqByClient[clientID]; ok && clientSeq <= last {
		return AppliedOp{}, ErrDuplicateOrOutOfOrder
	}
	if baseRevision != ds.revision {
		return AppliedOp{}, ErrRevisionConflict
	}

	res, err := editop.Apply(ds.table, ops)
	if err != nil {
		if errors.Is(err, piecetable.ErrInvariant) {
			log.Printf("piece table invariant violated doc=%s rev=%d err=%v", docID, ds.revision, err)
		}
		return AppliedOp{}, err
	}

	ds.revision++
	now := time.Now()
	applied := AppliedOp{
		OperationID: fmt.Sprintf("o-%d", now.UnixNano()),
		Revision:    ds.revision,
		AuthorID:    authorID,
		ClientID:    clientID,
		Ops:         ops,
		Result:      res,
		AppliedAt:   now,
	}

	// 满了丢弃最老的一条
	if len(ds.opsRing) == cap(ds.opsRing) {
		copy(ds.opsRing[0:], ds.opsRing[1:])
		ds.opsRing = ds.opsRing[:len(ds.opsRing)-1]
	}
	ds.opsRing = append(ds.opsRing, applied)
	ds.lastSeqByClient[clientID] = clientSeq

	if s.opt.DumpPieces {
		var sb strings.Builder
		_ = ds.table.Dump(&sb, false)
		log.Printf("pieces doc=%s rev=%d %s", docID, ds.revision, sb.String())
	}

	if s.events != nil {
		evt := EditEvent{
			EventType:    EventOpApplied,
			DocID:        docID,
			OperationID:  applied.OperationID,
			Revision:     applied.Revision,
			AuthorID:     authorID,
			ClientID:     clientID,
			ClientSeq:    clientSeq,
			BaseRevision: baseRevision,
			Ops:          ops,
			Cursor:       res.Cursor,
			Length:       res.Length,
			AppliedAt:    now,
		}
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opt.EnqueueTimeout)
		if err := s.events.Enqueue(ectx, evt); err != nil {
			log.Printf("enqueue edit event failed doc=%s rev=%d err=%v", docID, applied.Revision, err)
		}
		cancel()
	}
	return applied, nil
}

func (s *InMemoryService) CurrentRevision(ctx context.Context, docID string) (uint64, error) {
	ds, err := s.lookup(docID)
	if err != nil {
		return 0, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.revision, nil
}

// OpsSince 返回 fromRevision 之后、仍在环形缓冲里的操作
func (s *InMemoryService) OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error) {
	ds, err := s.lookup(docID)
	if err != nil {
		return nil, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var out []AppliedOp
	for _, op := range ds.opsRing {
		if op.Revision > fromRevision {
			out = append(out, op)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Render 返回当前版本的 render index。超出 Limits 时返回截断结果（Truncated=true），不算错误。
func (s *InMemoryService) Render(ctx context.Context, docID string) (*piecetable.RenderIndex, uint64, error) {
	ds, err := s.lookup(docID)
	if err != nil {
		return nil, 0, err
	}
	ds.mu.RLock()
	rev, epoch := ds.revision, ds.epoch
	ds.mu.RUnlock()

	build := func() (*piecetable.RenderIndex, error) {
		ds.mu.RLock()
		defer ds.mu.RUnlock()
		if err := ds.closed(docID); err != nil {
			return nil, err
		}
		if ds.revision != rev {
			// 等锁期间又有新的提交，不能把新内容缓存到旧版本下
			return nil, fmt.Errorf("%w: revision moved from %d to %d", ErrRevisionConflict, rev, ds.revision)
		}
		ri, err := ds.table.RebuildRenderIndex(s.opt.Render)
		if errors.Is(err, piecetable.ErrBoundsExceeded) {
			log.Printf("render truncated doc=%s rev=%d err=%v", docID, rev, err)
			err = nil
		}
		return ri, err
	}

	var ri *piecetable.RenderIndex
	if s.renders != nil {
		ri, err = s.renders.GetOrBuild(ctx, docID, epoch, rev, build)
	} else {
		ri, err = build()
	}
	if err != nil {
		return nil, 0, err
	}
	return ri, rev, nil
}

func (s *InMemoryService) LoadDocumentContent(ctx context.Context, docID string) (string, uint64, error) {
	ds, err := s.lookup(docID)
	if err != nil {
		return "", 0, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if err := ds.closed(docID); err != nil {
		return "", 0, err
	}
	return ds.table.String(), ds.revision, nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, docID string) error {
	if s.snapshots == nil {
		return ErrStoreNotInitialized
	}
	ds, err := s.lookup(docID)
	if err != nil {
		return err
	}
	ds.mu.RLock()
	if err := ds.closed(docID); err != nil {
		ds.mu.RUnlock()
		return err
	}
	content := ds.table.Bytes()
	rev := ds.revision
	ds.mu.RUnlock()
	return s.snapshots.SaveDocumentSnapshot(ctx, docID, rev, content)
}
