// Package docanalysis implements the document-analysis process: a format-specific extraction, a general
// extraction as fallback and a human review.
package docanalysis

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusNew       Status = "new"
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusAnalyzed  Status = "analyzed"
	StatusManual    Status = "manual"
	StatusFinalized Status = "finalized"
	StatusFailed    Status = "failed"
)

var ErrDocumentNotFound = errors.New("document not found")

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Document is the record analyzed by the process.
type Document struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	FileKey     string `json:"file_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Status      Status `json:"status"`

	Total               *decimal.Decimal `json:"total,omitempty"`
	Currency            string           `json:"currency,omitempty"`
	DocumentDate        *time.Time       `json:"document_date,omitempty"`
	CounterpartyName    string           `json:"counterparty_name,omitempty"`
	CounterpartyAddress string           `json:"counterparty_address,omitempty"`
	TaxTotal            *decimal.Decimal `json:"tax_total,omitempty"`
	References          []string         `json:"references,omitempty"`
	Tags                []Tag            `json:"tags,omitempty"`

	// Autofilled lists the fields written by extraction rather than by a person.
	Autofilled []string `json:"autofilled,omitempty"`

	// ProcessInstanceID links the document to the analysis instance working on it.
	ProcessInstanceID string `json:"process_instance_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ExtractedData is the result of an extraction. Every field is optional.
type ExtractedData struct {
	Total               *decimal.Decimal `json:"total,omitempty"`
	Currency            string           `json:"currency,omitempty"`
	Date                *time.Time       `json:"date,omitempty"`
	CounterpartyName    string           `json:"counterparty_name,omitempty"`
	CounterpartyAddress string           `json:"counterparty_address,omitempty"`
	TaxTotal            *decimal.Decimal `json:"tax_total,omitempty"`
	Tags                []string         `json:"tags,omitempty"`
	References          []string         `json:"references,omitempty"`
}
