package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/transferguard/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Type is the closed set of document variants. Parsing behaviour is selected per variant.
type Type string

const (
	// TypeRules holds limit and sanction statements.
	TypeRules Type = "rules"
	// TypeSanctions holds sanction statements and lists.
	TypeSanctions Type = "sanctions"
	// TypeOther is retrievable context only.
	TypeOther Type = "other"
)

var typeAliases = map[string]Type{
	"rules":            TypeRules,
	"compliance_rules": TypeRules,
	"sanctions":        TypeSanctions,
	"sanctions_list":   TypeSanctions,
	"other":            TypeOther,
	"terms_conditions": TypeOther,
}

// ParseType resolves a declared document type, accepting the legacy upload aliases.
func ParseType(s string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("document type %q: %w", s, domain.ErrUnsupportedFormat)
	}
	return t, nil
}

// Types lists all variants in a stable order.
func Types() []Type { return []Type{TypeRules, TypeSanctions, TypeOther} }

// Status is the ingestion lifecycle state.
type Status string

const (
	StatusUploaded        Status = "UPLOADED"
	StatusProcessing      Status = "PROCESSING"
	StatusProcessed       Status = "PROCESSED"
	StatusIngestionFailed Status = "INGESTION_FAILED"
)

// Document is the uploaded-document aggregate.
type Document struct {
	id            string
	location      string
	docType       Type
	status        Status
	version       int
	chunkCount    int
	failureReason string
	createdAt     time.Time
	updatedAt     time.Time
	processedAt   time.Time
}

// New validates and creates an UPLOADED document.
func New(id, location string, docType Type, now time.Time) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > 256 {
		return Document{}, fmt.Errorf("document ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID must be alphanumeric with dots, underscores and hyphens")
	}
	if _, err := ParseType(string(docType)); err != nil {
		return Document{}, err
	}
	return Document{
		id:        id,
		location:  location,
		docType:   docType,
		status:    StatusUploaded,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id, location string, docType Type, status Status, version, chunkCount int,
	failureReason string, createdAt, updatedAt, processedAt time.Time,
) Document {
	return Document{
		id: id, location: location, docType: docType, status: status,
		version: version, chunkCount: chunkCount, failureReason: failureReason,
		createdAt: createdAt, updatedAt: updatedAt, processedAt: processedAt,
	}
}

func (d Document) ID() string { return d.id }
func (d Document) Location() string { return d.location }
func (d Document) Type() Type { return d.docType }
func (d Document) Status() Status { return d.status }
func (d Document) Version() int { return d.version }
func (d Document) ChunkCount() int { return d.chunkCount }
func (d Document) FailureReason() string { return d.failureReason }
func (d Document) CreatedAt() time.Time { return d.createdAt }
func (d Document) UpdatedAt() time.Time { return d.updatedAt }
func (d Document) ProcessedAt() time.Time { return d.processedAt }
func (d Document) Processed() bool { return d.status == StatusProcessed }

// Reupload resets the document to UPLOADED with a new location and type.
// Version is kept so the next successful ingestion still increments it.
func (d Document) Reupload(location string, docType Type, now time.Time) Document {
	d.location = location
	d.docType = docType
	d.status = StatusUploaded
	d.failureReason = ""
	d.updatedAt = now
	return d
}

// StartProcessing moves UPLOADED or PROCESSED into PROCESSING.
func (d Document) StartProcessing(now time.Time) (Document, error) {
	if d.status != StatusUploaded && d.status != StatusProcessed {
		return d, fmt.Errorf("%s -> %s: %w", d.status, StatusProcessing, domain.ErrInvalidTransition)
	}
	d.status = StatusProcessing
	d.failureReason = ""
	d.updatedAt = now
	return d, nil
}

// MarkProcessed completes ingestion and bumps the version.
func (d Document) MarkProcessed(chunkCount int, now time.Time) (Document, error) {
	if d.status != StatusProcessing {
		return d, fmt.Errorf("%s -> %s: %w", d.status, StatusProcessed, domain.ErrInvalidTransition)
	}
	d.status = StatusProcessed
	d.version++
	d.chunkCount = chunkCount
	d.updatedAt = now
	d.processedAt = now
	return d, nil
}

// MarkFailed terminates a PROCESSING ingestion with a reason.
func (d Document) MarkFailed(reason string, now time.Time) (Document, error) {
	if d.status != StatusProcessing {
		return d, fmt.Errorf("%s -> %s: %w", d.status, StatusIngestionFailed, domain.ErrInvalidTransition)
	}
	d.status = StatusIngestionFailed
	d.failureReason = reason
	d.updatedAt = now
	return d, nil
}

// ClearChunks records that the document's vectors were removed.
func (d Document) ClearChunks(now time.Time) Document {
	d.chunkCount = 0
	d.updatedAt = now
	return d
}
