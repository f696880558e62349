package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/models"
)

// AssignmentFilter describes state, ownership, search and pagination options.
type AssignmentFilter struct {
	State     models.AssignmentState
	TeacherID string
	Search    string
	Sort      string
	Page      int
	PageSize  int
}

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	Count(ctx context.Context, state models.AssignmentState) (int64, error)
	GetByID(ctx context.Context, id string) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Archive(ctx context.Context, id, actorID string, at time.Time) (models.Assignment, error)
	Restore(ctx context.Context, id string) (models.Assignment, error)
	DeleteArchived(ctx context.Context, id string) (models.Assignment, error)
	DeleteAllArchived(ctx context.Context) ([]models.Assignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{})

	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}

	if filter.TeacherID != "" {
		query = query.Where("teacher_id = ?", filter.TeacherID)
	}

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate("count assignments", err)
	}

	query = query.Order(normalizeAssignmentSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, 0, translate("list assignments", err)
	}

	return assignments, total, nil
}

func (r *assignmentRepository) Count(ctx context.Context, state models.AssignmentState) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Assignment{})
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if err := query.Count(&total).Error; err != nil {
		return 0, translate("count assignments", err)
	}
	return total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return models.Assignment{}, translate("get assignment", err)
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return translate("create assignment", r.db.WithContext(ctx).Create(assignment).Error)
}

func (r *assignmentRepository) Archive(ctx context.Context, id, actorID string, at time.Time) (models.Assignment, error) {
	return r.transition(ctx, "archive assignment", id, models.AssignmentStateActive, map[string]interface{}{
		"state":       models.AssignmentStateArchived,
		"archived_at": at,
		"archived_by": actorID,
	})
}

func (r *assignmentRepository) Restore(ctx context.Context, id string) (models.Assignment, error) {
	return r.transition(ctx, "restore assignment", id, models.AssignmentStateArchived, map[string]interface{}{
		"state":       models.AssignmentStateActive,
		"archived_at": nil,
		"archived_by": nil,
	})
}

// transition applies the update only while the row is still in the expected state.
func (r *assignmentRepository) transition(ctx context.Context, op, id string, from models.AssignmentState, values map[string]interface{}) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Assignment{}).
			Where("id = ? AND state = ?", id, from).
			Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("id = ?", id).First(&assignment).Error
	})
	if err != nil {
		return models.Assignment{}, translate(op, err)
	}
	return assignment, nil
}

func (r *assignmentRepository) DeleteArchived(ctx context.Context, id string) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND state = ?", id, models.AssignmentStateArchived).First(&assignment).Error; err != nil {
			return err
		}
		if err := deleteSubmissionsOf(tx, []string{id}); err != nil {
			return err
		}
		result := tx.Where("id = ? AND state = ?", id, models.AssignmentStateArchived).Delete(&models.Assignment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return models.Assignment{}, translate("delete archived assignment", err)
	}
	assignment.State = models.AssignmentStateDeleted
	return assignment, nil
}

func (r *assignmentRepository) DeleteAllArchived(ctx context.Context) ([]models.Assignment, error) {
	var removed []models.Assignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", models.AssignmentStateArchived).Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}

		ids := make([]string, 0, len(removed))
		for _, assignment := range removed {
			ids = append(ids, assignment.ID)
		}

		if err := deleteSubmissionsOf(tx, ids); err != nil {
			return err
		}
		return tx.Where("id IN ? AND state = ?", ids, models.AssignmentStateArchived).Delete(&models.Assignment{}).Error
	})
	if err != nil {
		return nil, translate("delete all archived assignments", err)
	}

	for i := range removed {
		removed[i].State = models.AssignmentStateDeleted
	}
	return removed, nil
}

// deleteSubmissionsOf removes dependent rows explicitly so drivers without FK enforcement behave the same.
func deleteSubmissionsOf(tx *gorm.DB, assignmentIDs []string) error {
	submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("assignment_id IN ?", assignmentIDs)
	if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&models.SubmissionGradeHistory{}).Error; err != nil {
		return err
	}
	return tx.Where("assignment_id IN ?", assignmentIDs).Delete(&models.Submission{}).Error
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "due_date", "due_date:asc", "due_date.asc":
		return "due_date ASC"
	case "-due_date", "due_date:desc", "due_date.desc":
		return "due_date DESC"
	case "created_at", "created_at:asc", "created_at.asc":
		return "created_at ASC"
	case "title", "title:asc", "title.asc":
		return "title ASC"
	case "-title", "title:desc", "title.desc":
		return "title DESC"
	default:
		return "created_at DESC"
	}
}
