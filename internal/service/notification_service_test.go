package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

func TestNotificationServiceLifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), newTestValidator(), testLogger())
	ctx := context.Background()

	first, err := svc.Notify(ctx, dto.NotificationCreateRequest{
		UserID:  alice.ID,
		Title:   "<b>Graded</b>",
		Message: "Your essay was graded <script>alert(1)</script>",
		Type:    models.NotificationTypeSuccess,
	})
	require.NoError(t, err)
	require.Equal(t, "Graded", first.Title)
	require.Equal(t, "Your essay was graded", first.Message)
	require.False(t, first.Read)

	_, err = svc.Notify(ctx, dto.NotificationCreateRequest{UserID: alice.ID, Title: "Reminder", Message: "Due soon", Type: models.NotificationTypeWarning})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, dto.NotificationCreateRequest{UserID: bob.ID, Title: "Hello", Message: "Welcome", Type: models.NotificationTypeInfo})
	require.NoError(t, err)

	listed, err := svc.List(ctx, alice.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	_, err = svc.MarkRead(ctx, first.ID, bob.ID)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	read, err := svc.MarkRead(ctx, first.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, read.Read)

	updated, err := svc.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, updated.Updated)

	_, err = svc.List(ctx, "", 0, 0)
	require.ErrorIs(t, err, ErrValidation)
}

func TestNotificationServiceStoresPlainTextUnescaped(t *testing.T) {
	svc := NewNotificationService(repository.NewNotificationRepository(newTestDB(t)), newTestValidator(), testLogger())

	stored, err := svc.Notify(context.Background(), dto.NotificationCreateRequest{
		UserID:  alice.ID,
		Title:   `"Q&A" graded`,
		Message: `Tom & Jerry's "proof": x < y`,
		Type:    models.NotificationTypeInfo,
	})
	require.NoError(t, err)
	require.Equal(t, `"Q&A" graded`, stored.Title)
	require.Equal(t, `Tom & Jerry's "proof": x < y`, stored.Message)
}

func TestNotificationServiceRejectsInvalidPayload(t *testing.T) {
	svc := NewNotificationService(repository.NewNotificationRepository(newTestDB(t)), newTestValidator(), testLogger())

	_, err := svc.Notify(context.Background(), dto.NotificationCreateRequest{UserID: alice.ID, Title: "x", Message: "y", Type: "urgent"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Notify(context.Background(), dto.NotificationCreateRequest{UserID: alice.ID, Title: "<i></i>", Message: "y", Type: models.NotificationTypeInfo})
	require.ErrorIs(t, err, ErrValidation)
}
