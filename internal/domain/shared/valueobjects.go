package shared

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// Owner Value Object
// ═══════════════════════════════════════════════════════════════════════════

// MaxOwnerLen bounds the authenticated identity string in bytes.
const MaxOwnerLen = 128

// Owner is the opaque, authenticated identity that controls a profile.
type Owner string

// String returns the string representation.
func (o Owner) String() string {
	return string(o)
}

// IsEmpty checks if the identity is empty.
func (o Owner) IsEmpty() bool {
	return o == ""
}

// IsValid checks that the identity is non-empty, bounded and valid UTF-8.
func (o Owner) IsValid() bool {
	return o != "" && len(o) <= MaxOwnerLen && utf8.ValidString(string(o))
}

// NewOwner creates a new Owner with validation. The value is used verbatim;
// identities are not case-folded.
func NewOwner(id string) (Owner, error) {
	o := Owner(strings.TrimSpace(id))
	if o.IsEmpty() {
		return "", NewDomainError("shared", "NewOwner", ErrEmptyValue, "owner identity cannot be empty")
	}
	if !o.IsValid() {
		return "", NewDomainError("shared", "NewOwner", ErrTooLong,
			fmt.Sprintf("owner identity must be valid UTF-8 of at most %d bytes", MaxOwnerLen))
	}
	return o, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Bounded Text
// ═══════════════════════════════════════════════════════════════════════════

// BoundedText checks that value is valid UTF-8 no longer than max bytes.
// Empty values pass. The value is never truncated. kindLong lets callers
// report their own sentinel error.
func BoundedText(domain, op, field, value string, max int, kindLong error) (string, error) {
	if !utf8.ValidString(value) {
		return "", NewDomainError(domain, op, ErrInvalidInput, field+" must be valid UTF-8")
	}
	if len(value) > max {
		return "", NewDomainError(domain, op, kindLong,
			fmt.Sprintf("%s exceeds %d bytes (got %d)", field, max, len(value)))
	}
	return value, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
