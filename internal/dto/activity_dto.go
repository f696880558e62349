package dto

import (
	"time"

	"github.com/noah-isme/assignment-portal/internal/models"
)

// ActivityListRequest filters the audit trail.
type ActivityListRequest struct {
	ActorID    string `query:"actor_id" validate:"max=36"`
	Action     string `query:"action" validate:"max=64"`
	EntityType string `query:"entity_type" validate:"max=64"`
	EntityID   string `query:"entity_id" validate:"max=36"`
	Page       int    `query:"page" validate:"gte=0"`
	PageSize   int    `query:"page_size" validate:"gte=0,lte=100"`
}

// ActivityResponse is a serialized audit entry.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    string                 `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ActivityListResponse wraps a page of audit entries.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// NewActivityResponse converts an activity log model into a DTO.
func NewActivityResponse(model models.ActivityLog) ActivityResponse {
	metadata := map[string]interface{}{}
	for key, value := range model.Metadata {
		metadata[key] = value
	}
	return ActivityResponse{
		ID:         model.ID,
		ActorID:    model.ActorID,
		ActorRole:  model.ActorRole,
		Action:     model.Action,
		EntityType: model.EntityType,
		EntityID:   model.EntityID,
		Metadata:   metadata,
		CreatedAt:  model.CreatedAt,
	}
}
