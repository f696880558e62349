package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignment-portal/internal/config"
	"github.com/noah-isme/assignment-portal/internal/database"
	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/events"
	"github.com/noah-isme/assignment-portal/internal/handler"
	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/repository"
	"github.com/noah-isme/assignment-portal/internal/router"
	"github.com/noah-isme/assignment-portal/internal/service"
)

const testSecret = "handler-test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type blobStore struct {
	mu    sync.Mutex
	blobs map[string]int
}

func (b *blobStore) Upload(_ context.Context, key string, reader io.Reader) (string, error) {
	payload, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blobs == nil {
		b.blobs = map[string]int{}
	}
	ref := "https://blobs.test/" + key
	b.blobs[ref] = len(payload)
	return ref, nil
}

func (b *blobStore) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[ref]; !ok {
		return errors.New("missing blob")
	}
	delete(b.blobs, ref)
	return nil
}

func (b *blobStore) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

// portal is a fully wired API backed by in-memory SQLite and miniredis.
type portal struct {
	app   *fiber.App
	bus   *events.Bus
	blobs *blobStore
	redis *miniredis.Miniredis
}

func newPortal(t *testing.T) *portal {
	t.Helper()

	db, err := database.ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mini, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		_ = redisClient.Close()
		mini.Close()
	})

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	bus := events.NewBus(logger)
	blobs := &blobStore{}

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	denylist := service.NewRedisTokenDenylist(redisClient)
	authService := service.NewAuthService(repository.NewUserRepository(db), denylist, validate, testSecret, time.Hour, logger)
	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), validate, logger)
	notificationService := service.NewNotificationService(repository.NewNotificationRepository(db), validate, logger)
	statsService := service.NewStatsService(assignmentRepo, submissionRepo, redisClient, time.Minute, logger)

	collaborators := service.Collaborators{
		Storage:  blobs,
		Activity: activityService,
		Events:   bus,
		Stats:    statsService,
		Notifier: notificationService,
	}
	assignmentService := service.NewAssignmentService(assignmentRepo, validate, collaborators, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, collaborators, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, config.Config{AppName: "Assignment Portal", AppEnv: "test"}, router.Dependencies{
		AuthHandler:         handler.NewAuthHandler(authService, nil, logger),
		AssignmentHandler:   handler.NewAssignmentHandler(assignmentService, submissionService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, nil, logger),
		StatsHandler:        handler.NewStatsHandler(statsService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		EventsHandler:       handler.NewEventsHandler(bus, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		JWTMiddleware: middleware.JWTProtected(testSecret, denylist),
	})

	return &portal{app: app, bus: bus, blobs: blobs, redis: mini}
}

func (p *portal) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := p.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func (p *portal) json(t *testing.T, method, path, token string, payload interface{}) (int, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return p.do(t, req)
}

func (p *portal) form(t *testing.T, path, token string, fields map[string]string, file []byte) (int, envelope) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", "work.pdf")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return p.do(t, req)
}

func (p *portal) signUp(t *testing.T, name, email, role string) dto.AuthResponse {
	t.Helper()
	status, body := p.json(t, http.MethodPost, "/api/v1/auth/sign-up", "", dto.SignUpRequest{
		Name:     name,
		Email:    email,
		Password: "correct-horse-battery",
		Role:     role,
	})
	require.Equal(t, http.StatusCreated, status, body.Message)

	var auth dto.AuthResponse
	require.NoError(t, json.Unmarshal(body.Data, &auth))
	return auth
}

func (p *portal) createAssignment(t *testing.T, token, title string, due time.Time) dto.AssignmentResponse {
	t.Helper()
	status, body := p.form(t, "/api/v1/assignments", token, map[string]string{
		"title":       title,
		"description": "Read chapter four and summarise it.",
		"due_date":    due.UTC().Format(time.RFC3339),
		"points":      "50",
	}, nil)
	require.Equal(t, http.StatusCreated, status, body.Message)

	var assignment dto.AssignmentResponse
	require.NoError(t, json.Unmarshal(body.Data, &assignment))
	return assignment
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
}

// startFiberServer serves app on a loopback port for clients that need a real socket.
func startFiberServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})

	time.Sleep(50 * time.Millisecond)
	return "http://" + listener.Addr().String()
}
