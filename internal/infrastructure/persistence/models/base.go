package models

import (
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Record holds the identity and audit columns shared by every ledger table
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

func recordFrom(e shared.BaseEntity) Record {
	return Record{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (r Record) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// VersionedRecord is a Record whose rows are updated under optimistic locking.
// The version column is compared in the UPDATE's WHERE clause.
type VersionedRecord struct {
	Record
	Version int `gorm:"not null;default:1"`
}

func versionedFrom(a shared.BaseAggregateRoot) VersionedRecord {
	return VersionedRecord{Record: recordFrom(a.BaseEntity), Version: a.Version}
}

func (r VersionedRecord) aggregate() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{BaseEntity: r.entity(), Version: r.Version}
}
