package audit

import (
	"context"
	"fmt"
	"time"

	"ipatlas/internal/domain"

	"gorm.io/gorm"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// Filters narrows an audit query. Zero values are ignored. IPPattern and
// Name match against the stored snapshot, so they find events for
// resources that have since been deleted.
type Filters struct {
	From         *time.Time
	To           *time.Time
	ActionType   string
	ResourceType string
	ResourceID   string
	UserID       string
	IPPattern    string
	Country      string
	Name         string
	Page         int
	PerPage      int
}

// Page is one page of query results.
type Page struct {
	Events     []domain.AuditEvent `json:"events"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int                 `json:"total_pages"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Query returns matching events, newest first. Side-effect free.
func (s *Service) Query(ctx context.Context, filters Filters) (*Page, error) {
	query := s.db.WithContext(ctx).Model(&domain.AuditEvent{})

	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}
	if filters.ActionType != "" {
		query = query.Where("action_type = ?", filters.ActionType)
	}
	if filters.ResourceType != "" {
		query = query.Where("resource_type = ?", filters.ResourceType)
	}
	if filters.ResourceID != "" {
		query = query.Where("resource_id = ?", filters.ResourceID)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.IPPattern != "" {
		query = query.Where("snapshot LIKE ?", "%"+filters.IPPattern+"%")
	}
	if filters.Country != "" {
		query = query.Where("snapshot LIKE ?", fmt.Sprintf(`%%"country":%q%%`, filters.Country))
	}
	if filters.Name != "" {
		query = query.Where("snapshot LIKE ?", "%"+filters.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("audit: count events: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	perPage := filters.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	var events []domain.AuditEvent
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	return &Page{
		Events:     events,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// History returns every event for one resource, oldest first, so a
// caller can replay the full lifecycle including the final deleted
// state.
func (s *Service) History(ctx context.Context, resourceType, resourceID string) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("audit: history for %s/%s: %w", resourceType, resourceID, err)
	}
	return events, nil
}
