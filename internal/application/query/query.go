// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// Viewer identifies who is reading and whose records.
type Viewer struct {
	// Caller is the authenticated identity. Required.
	Caller shared.Owner

	// Owner is the profile being read. Empty means the caller's own.
	Owner shared.Owner
}

// target returns the owner whose records may be read.
func (v Viewer) target(op string) (shared.Owner, error) {
	if v.Caller.IsEmpty() {
		return "", shared.NewDomainError("query", op, shared.ErrUnauthorized, "caller identity is required")
	}
	if !v.Caller.IsValid() {
		return "", shared.NewDomainError("query", op, shared.ErrInvalidInput, "caller identity is invalid")
	}
	if !v.Owner.IsEmpty() && v.Owner != v.Caller {
		return "", progression.NewAccessDeniedError(op, v.Caller, v.Owner)
	}
	return v.Caller, nil
}

// Page is a page of results.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`

	// HasMore is true when the page is full. The last page reports true
	// when it happens to be exactly full.
	HasMore bool `json:"has_more"`
}

func newPage[T any](items []T, p shared.Pagination) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: p.Page, PageSize: p.Limit(), HasMore: len(items) == p.Limit()}
}
