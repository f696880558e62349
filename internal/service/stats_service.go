package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/observability"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

const (
	statsGenerationKey = "stats:generation"
	streakWindow       = 24 * time.Hour
)

// StatsInvalidator is notified after every mutation that changes statistics inputs.
type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// StatsService computes dashboard counters from the record store.
type StatsService interface {
	StatsInvalidator
	Student(ctx context.Context, studentID string) (dto.StudentStatsResponse, error)
	Teacher(ctx context.Context) (dto.TeacherStatsResponse, error)
	Board(ctx context.Context, studentID string) (dto.StudentBoardResponse, error)
}

type statsService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStatsService builds the statistics view. A nil cache disables caching.
func NewStatsService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) StatsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &statsService{
		assignments: assignments,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "stats_service").Logger(),
		now:         time.Now,
	}
}

// Student and Teacher count every stored assignment, archived included, so that
// completed submissions never exceed the total.
func (s *statsService) Student(ctx context.Context, studentID string) (dto.StudentStatsResponse, error) {
	var response dto.StudentStatsResponse
	err := s.cached(ctx, "student", studentID, &response, func(ctx context.Context) (interface{}, error) {
		var (
			total       int64
			submissions []models.Submission
		)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			var err error
			total, err = s.assignments.Count(groupCtx, "")
			return err
		})
		group.Go(func() error {
			var err error
			submissions, err = s.submissions.List(groupCtx, repository.SubmissionFilter{StudentID: &studentID})
			return err
		})
		if err := group.Wait(); err != nil {
			return nil, err
		}

		return BuildStudentStats(int(total), submissions), nil
	})
	return response, err
}

func (s *statsService) Teacher(ctx context.Context) (dto.TeacherStatsResponse, error) {
	var response dto.TeacherStatsResponse
	err := s.cached(ctx, "teacher", "all", &response, func(ctx context.Context) (interface{}, error) {
		var (
			total       int64
			submissions []models.Submission
		)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			var err error
			total, err = s.assignments.Count(groupCtx, "")
			return err
		})
		group.Go(func() error {
			var err error
			submissions, err = s.submissions.List(groupCtx, repository.SubmissionFilter{})
			return err
		})
		if err := group.Wait(); err != nil {
			return nil, err
		}

		return BuildTeacherStats(int(total), submissions), nil
	})
	return response, err
}

// Board is not cached: derived statuses depend on the current time.
func (s *statsService) Board(ctx context.Context, studentID string) (dto.StudentBoardResponse, error) {
	var (
		assignments []models.Assignment
		submissions []models.Submission
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		assignments, _, err = s.assignments.List(groupCtx, repository.AssignmentFilter{State: models.AssignmentStateActive, Sort: "due_date"})
		return err
	})
	group.Go(func() error {
		var err error
		submissions, err = s.submissions.List(groupCtx, repository.SubmissionFilter{StudentID: &studentID})
		return err
	})
	if err := group.Wait(); err != nil {
		return dto.StudentBoardResponse{}, err
	}

	return BuildStudentBoard(assignments, submissions, s.now()), nil
}

// Invalidate bumps the cache generation so every cached view is recomputed.
func (s *statsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, statsGenerationKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to bump stats cache generation")
	}
}

func (s *statsService) cached(ctx context.Context, view, id string, target interface{}, compute func(context.Context) (interface{}, error)) error {
	key := ""
	if s.cache != nil {
		generation, err := s.cache.Get(ctx, statsGenerationKey).Result()
		if errors.Is(err, redis.Nil) {
			generation, err = "0", nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read stats cache generation")
		} else {
			key = fmt.Sprintf("stats:v%s:%s:%s", generation, view, id)
		}
	}

	if key != "" {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			if unmarshalErr := json.Unmarshal([]byte(cached), target); unmarshalErr == nil {
				observability.StatsCacheLookups().WithLabelValues(view, "hit").Inc()
				return nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
		}
		observability.StatsCacheLookups().WithLabelValues(view, "miss").Inc()
	}

	value, err := compute(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store stats cache")
		}
	}

	return json.Unmarshal(payload, target)
}

// BuildStudentStats folds one student's submissions into progress counters.
func BuildStudentStats(totalAssignments int, submissions []models.Submission) dto.StudentStatsResponse {
	stats := dto.StudentStatsResponse{
		TotalAssignments:     totalAssignments,
		CompletedAssignments: len(submissions),
		SubmissionStreak:     SubmissionStreak(submissions),
	}

	graded := 0
	for _, submission := range submissions {
		if submission.Grade == nil {
			continue
		}
		graded++
		stats.TotalPoints += *submission.Grade
	}

	if graded > 0 {
		stats.AverageGrade = float64(stats.TotalPoints) / float64(graded)
	}

	return stats
}

// BuildTeacherStats folds all submissions into platform counters.
func BuildTeacherStats(totalAssignments int, submissions []models.Submission) dto.TeacherStatsResponse {
	stats := dto.TeacherStatsResponse{TotalAssignments: totalAssignments}

	students := make(map[string]struct{})
	graded, sum := 0, 0
	for _, submission := range submissions {
		students[submission.StudentID] = struct{}{}
		if submission.Grade == nil {
			stats.PendingGrading++
			continue
		}
		graded++
		sum += *submission.Grade
	}

	stats.ActiveStudents = len(students)
	if graded > 0 {
		stats.AverageGrade = float64(sum) / float64(graded)
	}

	return stats
}

// SubmissionStreak counts consecutive submissions, newest first, while each gap
// to the previous one is at most 24 hours.
func SubmissionStreak(submissions []models.Submission) int {
	if len(submissions) == 0 {
		return 0
	}

	times := make([]time.Time, 0, len(submissions))
	for _, submission := range submissions {
		times = append(times, submission.SubmittedAt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })

	streak := 1
	for i := 1; i < len(times); i++ {
		if times[i-1].Sub(times[i]) > streakWindow {
			break
		}
		streak++
	}

	return streak
}

// BuildStudentBoard pairs each active assignment with the student's submission and derived status.
func BuildStudentBoard(assignments []models.Assignment, submissions []models.Submission, now time.Time) dto.StudentBoardResponse {
	byAssignment := make(map[string]models.Submission, len(submissions))
	for _, submission := range submissions {
		byAssignment[submission.AssignmentID] = submission
	}

	items := make([]dto.BoardItem, 0, len(assignments))
	for _, assignment := range assignments {
		item := dto.BoardItem{Assignment: dto.NewAssignmentResponse(assignment)}

		var current *models.Submission
		if submission, ok := byAssignment[assignment.ID]; ok {
			current = &submission
			response := dto.NewSubmissionResponse(submission)
			item.Submission = &response
		}

		item.Status = string(models.DeriveStatus(assignment, current, now))
		item.CanSubmit = assignment.IsActive() && models.CanSubmit(models.RoleStudent, current != nil, assignment, now)
		items = append(items, item)
	}

	return dto.StudentBoardResponse{Items: items, GeneratedAt: now.UTC()}
}
