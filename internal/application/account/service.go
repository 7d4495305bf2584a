package account

import (
	"context"

	"github.com/drs-api/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListQuery selects a page of accounts.
type ListQuery struct {
	Limit  int
	Cursor string
	domain.AccountFilter
}

// Page is one page of sanitized accounts. Next is empty on the last page.
type Page struct {
	Items []*domain.Account `json:"items"`
	Next  string            `json:"next,omitempty"`
}

type accountStore interface {
	ScanPage(ctx context.Context, limit int32, cursor string, f domain.AccountFilter) ([]domain.Account, string, error)
}

type Service interface {
	List(ctx context.Context, kind domain.AccountKind, q ListQuery) (*Page, error)
}

type service struct {
	admins  accountStore
	doctors accountStore
}

func NewService(admins, doctors accountStore) Service {
	return &service{admins: admins, doctors: doctors}
}

func (s *service) List(ctx context.Context, kind domain.AccountKind, q ListQuery) (*Page, error) {
	store := s.doctors
	if kind == domain.KindAdmin {
		store = s.admins
	}
	switch {
	case q.Limit < 1:
		q.Limit = defaultPageSize
	case q.Limit > maxPageSize:
		q.Limit = maxPageSize
	}
	accounts, next, err := store.ScanPage(ctx, int32(q.Limit), q.Cursor, q.AccountFilter)
	if err != nil {
		return nil, err
	}
	page := &Page{Items: make([]*domain.Account, 0, len(accounts)), Next: next}
	for i := range accounts {
		page.Items = append(page.Items, accounts[i].Sanitized())
	}
	return page, nil
}
