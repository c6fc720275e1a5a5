package store

import "time"

// Document：文档元数据和创建时的原始内容（piece table 的 original buffer）
type Document struct {
	ID       string `gorm:"primaryKey;type:varchar(64)"`
	OwnerID  uint64 `gorm:"index"`
	Title    string `gorm:"type:varchar(255);uniqueIndex"`
	Original []byte `gorm:"type:longblob"`
	// xxhash64(Original)，加载时校验
	Checksum  uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID           uint64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
