package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/database"
	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/events"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// memoryStore backs both fake repositories so cascading deletes behave like the database.
type memoryStore struct {
	mu          sync.Mutex
	assignments map[string]models.Assignment
	submissions map[string]models.Submission
	histories   []models.SubmissionGradeHistory
	createCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		assignments: make(map[string]models.Assignment),
		submissions: make(map[string]models.Submission),
	}
}

type memoryAssignmentRepo struct{ store *memoryStore }

func (m *memoryAssignmentRepo) List(ctx context.Context, filter repository.AssignmentFilter) ([]models.Assignment, int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	var out []models.Assignment
	for _, assignment := range m.store.assignments {
		if filter.State != "" && assignment.State != filter.State {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(assignment.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, assignment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (m *memoryAssignmentRepo) Count(ctx context.Context, state models.AssignmentState) (int64, error) {
	_, total, err := m.List(ctx, repository.AssignmentFilter{State: state})
	return total, err
}

func (m *memoryAssignmentRepo) GetByID(ctx context.Context, id string) (models.Assignment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	assignment, ok := m.store.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return assignment, nil
}

func (m *memoryAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.State == "" {
		assignment.State = models.AssignmentStateActive
	}
	assignment.CreatedAt = time.Now()
	m.store.assignments[assignment.ID] = *assignment
	return nil
}

func (m *memoryAssignmentRepo) Archive(ctx context.Context, id, actorID string, at time.Time) (models.Assignment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	assignment, ok := m.store.assignments[id]
	if !ok || assignment.State != models.AssignmentStateActive {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	assignment.State = models.AssignmentStateArchived
	assignment.ArchivedAt = &at
	assignment.ArchivedBy = &actorID
	m.store.assignments[id] = assignment
	return assignment, nil
}

func (m *memoryAssignmentRepo) Restore(ctx context.Context, id string) (models.Assignment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	assignment, ok := m.store.assignments[id]
	if !ok || assignment.State != models.AssignmentStateArchived {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	assignment.State = models.AssignmentStateActive
	assignment.ArchivedAt = nil
	assignment.ArchivedBy = nil
	m.store.assignments[id] = assignment
	return assignment, nil
}

func (m *memoryAssignmentRepo) DeleteArchived(ctx context.Context, id string) (models.Assignment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *memoryAssignmentRepo) DeleteAllArchived(ctx context.Context) ([]models.Assignment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var removed []models.Assignment
	for id, assignment := range m.store.assignments {
		if assignment.State != models.AssignmentStateArchived {
			continue
		}
		deleted, err := m.deleteLocked(id)
		if err != nil {
			return nil, err
		}
		removed = append(removed, deleted)
	}
	return removed, nil
}

func (m *memoryAssignmentRepo) deleteLocked(id string) (models.Assignment, error) {
	assignment, ok := m.store.assignments[id]
	if !ok || assignment.State != models.AssignmentStateArchived {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	delete(m.store.assignments, id)
	for key, submission := range m.store.submissions {
		if submission.AssignmentID == id {
			delete(m.store.submissions, key)
		}
	}
	assignment.State = models.AssignmentStateDeleted
	return assignment, nil
}

type memorySubmissionRepo struct {
	store *memoryStore
	// beforeCreate runs outside the lock to widen race windows in tests.
	beforeCreate func()
}

func (m *memorySubmissionRepo) withAssignment(submission models.Submission) models.Submission {
	submission.Assignment = m.store.assignments[submission.AssignmentID]
	var history []models.SubmissionGradeHistory
	for _, entry := range m.store.histories {
		if entry.SubmissionID == submission.ID {
			history = append(history, entry)
		}
	}
	submission.History = history
	return submission
}

func (m *memorySubmissionRepo) List(ctx context.Context, filter repository.SubmissionFilter) ([]models.Submission, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []models.Submission
	for _, submission := range m.store.submissions {
		if filter.AssignmentID != nil && submission.AssignmentID != *filter.AssignmentID {
			continue
		}
		if filter.StudentID != nil && submission.StudentID != *filter.StudentID {
			continue
		}
		if filter.Graded != nil && submission.IsGraded() != *filter.Graded {
			continue
		}
		out = append(out, m.withAssignment(submission))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (m *memorySubmissionRepo) GetByID(ctx context.Context, id string) (models.Submission, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	submission, ok := m.store.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return m.withAssignment(submission), nil
}

func (m *memorySubmissionRepo) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (models.Submission, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, submission := range m.store.submissions {
		if submission.AssignmentID == assignmentID && submission.StudentID == studentID {
			return m.withAssignment(submission), nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (m *memorySubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.createCalls++
	for _, existing := range m.store.submissions {
		if existing.AssignmentID == submission.AssignmentID && existing.StudentID == submission.StudentID {
			return repository.ErrDuplicate
		}
	}
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now()
	}
	m.store.submissions[submission.ID] = *submission
	return nil
}

func (m *memorySubmissionRepo) Update(ctx context.Context, submission *models.Submission) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.submissions[submission.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *submission
	stored.Assignment = models.Assignment{}
	stored.History = nil
	m.store.submissions[submission.ID] = stored
	return nil
}

func (m *memorySubmissionRepo) CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	history.ID = uint(len(m.store.histories) + 1)
	m.store.histories = append(m.store.histories, *history)
	return nil
}

type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failing bool
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: make(map[string][]byte)}
}

func (m *memoryBlobStore) Upload(ctx context.Context, key string, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://blobs.test/" + key, nil
}

func (m *memoryBlobStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("blob store unavailable")
	}
	m.deleted = append(m.deleted, ref)
	delete(m.objects, strings.TrimPrefix(ref, "https://blobs.test/"))
	return nil
}

func (m *memoryBlobStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for key := range m.objects {
		out = append(out, key)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []dto.NotificationCreateRequest
}

func (r *recordingNotifier) Notify(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return dto.NotificationResponse{UserID: payload.UserID, Title: payload.Title}, nil
}

type fixture struct {
	store       *memoryStore
	assignments *memoryAssignmentRepo
	submissions *memorySubmissionRepo
	blobs       *memoryBlobStore
	activity    *memoryActivityRepo
	events      *recordingPublisher
	stats       *countingInvalidator
	notifier    *recordingNotifier
	lifecycle   *assignmentService
	manager     *submissionService
	clock       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemoryStore()
	f := &fixture{
		store:       store,
		assignments: &memoryAssignmentRepo{store: store},
		submissions: &memorySubmissionRepo{store: store},
		blobs:       newMemoryBlobStore(),
		activity:    &memoryActivityRepo{},
		events:      &recordingPublisher{},
		stats:       &countingInvalidator{},
		notifier:    &recordingNotifier{},
		clock:       time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}

	collaborators := Collaborators{
		Storage:  f.blobs,
		Activity: NewActivityService(f.activity, newTestValidator(), testLogger()),
		Events:   f.events,
		Stats:    f.stats,
		Notifier: f.notifier,
	}

	f.lifecycle = NewAssignmentService(f.assignments, newTestValidator(), collaborators, testLogger()).(*assignmentService)
	f.lifecycle.now = func() time.Time { return f.clock }
	f.manager = NewSubmissionService(f.submissions, f.assignments, newTestValidator(), collaborators, testLogger()).(*submissionService)
	f.manager.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) createAssignment(t *testing.T, title string, due time.Duration, points *int) dto.AssignmentResponse {
	t.Helper()
	created, err := f.lifecycle.Create(context.Background(), dto.AssignmentCreateRequest{
		Title:   title,
		DueDate: f.clock.Add(due).Format(time.RFC3339),
		Points:  points,
	}, nil, teacher)
	require.NoError(t, err)
	return created
}

var (
	teacher = Actor{ID: "teacher-1", Name: "Ms. Rivera", Role: models.RoleTeacher}
	alice   = Actor{ID: "student-1", Name: "Alice", Role: models.RoleStudent}
	bob     = Actor{ID: "student-2", Name: "Bob", Role: models.RoleStudent}
)

func intPtr(v int) *int {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))
	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mini.Close()
	})
	return mini, client
}
