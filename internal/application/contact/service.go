package contact

import (
	"context"
	"fmt"
	"strings"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/pkg/id"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type MessageStore interface {
	Put(ctx context.Context, m *domain.ContactMessage) error
	ListRecent(ctx context.Context, limit int32) ([]domain.ContactMessage, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notice) error
}

type Service interface {
	Submit(ctx context.Context, req domain.ContactRequest) (*domain.ContactMessage, error)
	List(ctx context.Context, limit int) ([]domain.ContactMessage, error)
}

type service struct {
	store    MessageStore
	notifier Notifier
	log      zerolog.Logger
}

func NewService(store MessageStore, notifier Notifier, log zerolog.Logger) Service {
	return &service{store: store, notifier: notifier, log: log}
}

// Submit stores the message and then sends a receipt to the sender.
// A failed receipt does not fail the submission.
func (s *service) Submit(ctx context.Context, req domain.ContactRequest) (*domain.ContactMessage, error) {
	m := &domain.ContactMessage{
		MessageID: id.New(),
		Name:      sanitize(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Message:   sanitize(req.Message),
	}
	created, err := id.Time(m.MessageID)
	if err != nil {
		return nil, domain.Internal("message id", err)
	}
	m.CreatedAt = created
	if m.Name == "" || m.Message == "" {
		return nil, fmt.Errorf("name and message must contain text: %w", domain.ErrBadRequest)
	}
	if err := s.store.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("store contact message: %w", err)
	}
	if err := s.notifier.Notify(ctx, domain.ContactNotice{To: m.Email, Name: m.Name, Message: m.Message}); err != nil {
		s.log.Warn().Err(err).Str("message_id", m.MessageID).Msg("contact receipt failed")
	}
	return m, nil
}

func (s *service) List(ctx context.Context, limit int) ([]domain.ContactMessage, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.store.ListRecent(ctx, int32(limit))
}

// sanitize trims s and drops angle brackets so stored text cannot carry markup.
func sanitize(s string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
}
