package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Party is a patient, doctor or branch as seen by the ledger
type Party struct {
	ID   uuid.UUID
	Name string
}

// Treatment is the part of a treatment record the ledger relies on
type Treatment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Name      string
	Price     decimal.Decimal
	Status    string
}

// IsRemoved reports whether the treatment was deleted or canceled upstream.
// The ledger treats such a treatment as absent.
func (t *Treatment) IsRemoved() bool {
	switch strings.ToUpper(strings.TrimSpace(t.Status)) {
	case "DELETED", "CANCELED", "CANCELLED":
		return true
	}
	return false
}

// TreatmentStep is a step within a treatment
type TreatmentStep struct {
	ID          uuid.UUID
	TreatmentID uuid.UUID
	Name        string
}

// Directory resolves identities owned by other modules.
// Lookups return a NOT_FOUND domain error for missing or soft-deleted records.
type Directory interface {
	FindPatient(ctx context.Context, id uuid.UUID) (*Party, error)
	FindDoctor(ctx context.Context, id uuid.UUID) (*Party, error)
	FindBranch(ctx context.Context, id uuid.UUID) (*Party, error)
}

// TreatmentCatalog is the source of treatment prices
type TreatmentCatalog interface {
	FindTreatment(ctx context.Context, id uuid.UUID) (*Treatment, error)
	FindTreatmentStep(ctx context.Context, id uuid.UUID) (*TreatmentStep, error)
}

// Document is a rendered invoice or receipt
type Document struct {
	FileName    string
	ContentType string
	Content     []byte
}

// DocumentRenderer turns ledger records into printable documents.
// Layout, translations and currency formatting belong to the renderer.
type DocumentRenderer interface {
	RenderInvoice(ctx context.Context, invoice *Invoice) (*Document, error)
	RenderPaymentReceipt(ctx context.Context, payment *Payment, invoice *Invoice) (*Document, error)
}
