package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"pieceServer/backend/internal/collab"
)

type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot：同一 (doc, revision) 重复保存视为成功
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision, content, checksum)
		VALUES (?, ?, ?, ?)`,
		docID,
		rev,
		content,
		checksum(content),
	)
	if err != nil {
		if isDuplicate(err) {
			log.Printf("snapshot already saved doc=%s rev=%d", docID, rev)
			return nil
		}
		return err
	}
	return nil
}

func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (collab.Snapshot, error) {
	snap := collab.Snapshot{DocID: docID}
	var sum uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, content, checksum FROM document_snapshots
		WHERE document_id = ? ORDER BY revision DESC LIMIT 1`,
		docID,
	).Scan(&snap.Revision, &snap.Content, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return collab.Snapshot{}, collab.ErrNoSnapshot
	}
	if err != nil {
		return collab.Snapshot{}, err
	}
	if checksum(snap.Content) != sum {
		return collab.Snapshot{}, fmt.Errorf("%w: snapshot %s@%d", ErrChecksumMismatch, docID, snap.Revision)
	}
	return snap, nil
}
