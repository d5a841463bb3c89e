package audit

import (
	"context"
	"fmt"
)

// Lister fetches persisted entries.
type Lister interface {
	ListEntries(ctx context.Context, businessID int64, filters ListFilters, limit, offset int) ([]Entry, bool, error)
}

// PagingInfo describes the position of a result page.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps a page of entries with paging metadata.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Service coordinates audit queries.
type Service struct {
	repo Lister
}

// NewService constructs the audit query service.
func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

// ListEntries returns a page of entries for the business, newest first.
func (s *Service) ListEntries(ctx context.Context, businessID int64, filters ListFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	entries, hasNext, err := s.repo.ListEntries(ctx, businessID, filters, pageSize, offset)
	if err != nil {
		return Result{}, err
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}
