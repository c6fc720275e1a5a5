package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document title already exists")
	ErrChecksumMismatch = errors.New("stored content checksum mismatch")
)

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// newDocumentID：owner + 标题 + 纳秒时间做 xxhash，16 位十六进制
func newDocumentID(ownerID uint64, title string, now time.Time) string {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatUint(ownerID, 10))
	_, _ = d.WriteString(title)
	_, _ = d.WriteString(strconv.FormatInt(now.UnixNano(), 10))
	return fmt.Sprintf("%016x", d.Sum64())
}

func (s *DocumentStore) GetDocumentID(ctx context.Context, title string) (string, error) {
	var doc Document
	err := s.db.WithContext(ctx).Select("id").Where("title = ?", title).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string, content []byte) (string, error) {
	doc := Document{
		ID:       newDocumentID(ownerID, title, time.Now()),
		OwnerID:  ownerID,
		Title:    title,
		Original: content,
		Checksum: checksum(content),
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if isDuplicate(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrDocumentExists
		}
		return "", err
	}
	return doc.ID, nil
}

func (s *DocumentStore) LoadOriginal(ctx context.Context, docID string) ([]byte, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", docID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	if checksum(doc.Original) != doc.Checksum {
		return nil, fmt.Errorf("%w: document %s", ErrChecksumMismatch, docID)
	}
	return doc.Original, nil
}
