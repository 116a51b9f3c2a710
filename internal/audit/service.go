package audit

import (
	"context"
	"fmt"
)

// WindowStore is the query side of the audit store.
type WindowStore interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo WindowStore
}

// NewService constructs an audit timeline service.
func NewService(repo WindowStore) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of audit entries with paging info.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (TimelineResult, error) {
	if s.repo == nil {
		return TimelineResult{}, fmt.Errorf("audit: repository not configured")
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

	entries, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return TimelineResult{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return TimelineResult{Entries: entries, Paging: paging}, nil
}
