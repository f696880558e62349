package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignment-portal/internal/dto"
)

func TestSubmitAndGradeOverHTTP(t *testing.T) {
	p := newPortal(t)
	teacher := p.signUp(t, "Ms. Rivera", "rivera@school.test", "teacher")
	alice := p.signUp(t, "Alice", "alice@school.test", "student")
	bob := p.signUp(t, "Bob", "bob@school.test", "student")

	assignment := p.createAssignment(t, teacher.Token, "Poetry Analysis", time.Now().Add(48*time.Hour))

	fields := map[string]string{"assignment_id": assignment.ID, "content": "Sonnet 18 compares..."}
	status, body := p.form(t, "/api/v1/submissions", alice.Token, fields, pdfBytes())
	require.Equal(t, http.StatusCreated, status, body.Message)
	submission := decode[dto.SubmissionResponse](t, body.Data)
	require.Equal(t, "submitted", submission.Status)
	require.Equal(t, alice.User.ID, submission.StudentID)
	require.NotEmpty(t, submission.FileURL)

	status, body = p.form(t, "/api/v1/submissions", alice.Token, fields, pdfBytes())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "submission already exists", body.Message)
	require.Equal(t, submission.ID, decode[dto.SubmissionResponse](t, body.Data).ID)
	require.Equal(t, 1, p.blobs.count(), "a repeated submit stores nothing")

	status, _ = p.form(t, "/api/v1/submissions", teacher.Token, fields, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = p.json(t, http.MethodGet, "/api/v1/submissions/"+submission.ID, bob.Token, nil)
	require.Equal(t, http.StatusNotFound, status, "students only see their own work")

	status, _ = p.json(t, http.MethodPatch, "/api/v1/submissions/"+submission.ID+"/grade", alice.Token, map[string]interface{}{"grade": 50})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = p.json(t, http.MethodPatch, "/api/v1/submissions/"+submission.ID+"/grade", teacher.Token, map[string]interface{}{"grade": 51})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = p.json(t, http.MethodPatch, "/api/v1/submissions/"+submission.ID+"/grade", teacher.Token, map[string]interface{}{
		"grade":    45,
		"feedback": "Strong reading of the volta.",
	})
	require.Equal(t, http.StatusOK, status, body.Message)
	graded := decode[dto.SubmissionResponse](t, body.Data)
	require.Equal(t, "graded", graded.Status)
	require.NotNil(t, graded.Grade)
	require.Equal(t, 45, *graded.Grade)

	status, body = p.json(t, http.MethodGet, "/api/v1/assignments/"+assignment.ID+"/status", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	standing := decode[dto.AssignmentStatusResponse](t, body.Data)
	require.Equal(t, "graded", standing.Status)
	require.False(t, standing.CanSubmit)

	status, body = p.json(t, http.MethodGet, "/api/v1/assignments/"+assignment.ID+"/status?student_id="+bob.User.ID, teacher.Token, nil)
	require.Equal(t, http.StatusOK, status)
	standing = decode[dto.AssignmentStatusResponse](t, body.Data)
	require.Equal(t, "pending", standing.Status)
	require.True(t, standing.CanSubmit)

	status, body = p.json(t, http.MethodGet, "/api/v1/stats/student", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[dto.StudentStatsResponse](t, body.Data)
	require.Equal(t, 1, stats.TotalAssignments)
	require.Equal(t, 1, stats.CompletedAssignments)
	require.Equal(t, 45, stats.TotalPoints)

	status, body = p.json(t, http.MethodGet, "/api/v1/stats/teacher", teacher.Token, nil)
	require.Equal(t, http.StatusOK, status)
	teacherStats := decode[dto.TeacherStatsResponse](t, body.Data)
	require.Equal(t, 1, teacherStats.TotalAssignments)
	require.Equal(t, 0, teacherStats.PendingGrading)
	require.Equal(t, 1, teacherStats.ActiveStudents)

	status, body = p.json(t, http.MethodGet, "/api/v1/notifications", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	notifications := decode[[]dto.NotificationResponse](t, body.Data)
	require.Len(t, notifications, 1)
	require.False(t, notifications[0].Read)

	status, _ = p.json(t, http.MethodPost, "/api/v1/notifications/read-all", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = p.json(t, http.MethodGet, "/api/v1/activity", teacher.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, decode[[]dto.ActivityResponse](t, body.Data))

	status, _ = p.json(t, http.MethodGet, "/api/v1/activity", alice.Token, nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestStudentListIsScopedToCaller(t *testing.T) {
	p := newPortal(t)
	teacher := p.signUp(t, "Ms. Rivera", "rivera@school.test", "teacher")
	alice := p.signUp(t, "Alice", "alice@school.test", "student")
	bob := p.signUp(t, "Bob", "bob@school.test", "student")

	assignment := p.createAssignment(t, teacher.Token, "Field Notes", time.Now().Add(24*time.Hour))
	for _, token := range []string{alice.Token, bob.Token} {
		status, body := p.form(t, "/api/v1/submissions", token, map[string]string{
			"assignment_id": assignment.ID,
			"content":       "observations",
		}, nil)
		require.Equal(t, http.StatusCreated, status, body.Message)
	}

	status, body := p.json(t, http.MethodGet, "/api/v1/submissions?student_id="+bob.User.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	mine := decode[[]dto.SubmissionResponse](t, body.Data)
	require.Len(t, mine, 1)
	require.Equal(t, alice.User.ID, mine[0].StudentID)

	status, body = p.json(t, http.MethodGet, "/api/v1/submissions?assignment_id="+assignment.ID, teacher.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]dto.SubmissionResponse](t, body.Data), 2)
}

func TestBoardShowsDerivedStatuses(t *testing.T) {
	p := newPortal(t)
	teacher := p.signUp(t, "Ms. Rivera", "rivera@school.test", "teacher")
	alice := p.signUp(t, "Alice", "alice@school.test", "student")

	done := p.createAssignment(t, teacher.Token, "Done Already", time.Now().Add(24*time.Hour))
	p.createAssignment(t, teacher.Token, "Still Open", time.Now().Add(24*time.Hour))

	status, _ := p.form(t, "/api/v1/submissions", alice.Token, map[string]string{
		"assignment_id": done.ID,
		"content":       "finished",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	status, body := p.json(t, http.MethodGet, "/api/v1/stats/board", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	board := decode[dto.StudentBoardResponse](t, body.Data)
	require.Len(t, board.Items, 2)

	statuses := map[string]string{}
	for _, item := range board.Items {
		statuses[item.Assignment.Title] = item.Status
	}
	require.Equal(t, "submitted", statuses["Done Already"])
	require.Equal(t, "pending", statuses["Still Open"])
}

func TestSignOutRevokesToken(t *testing.T) {
	p := newPortal(t)
	alice := p.signUp(t, "Alice", "alice@school.test", "student")

	status, body := p.json(t, http.MethodGet, "/api/v1/auth/me", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, alice.User.ID, decode[dto.UserResponse](t, body.Data).ID)

	status, _ = p.json(t, http.MethodPost, "/api/v1/auth/sign-out", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = p.json(t, http.MethodGet, "/api/v1/auth/me", alice.Token, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body = p.json(t, http.MethodPost, "/api/v1/auth/sign-in", "", dto.SignInRequest{
		Email:    "alice@school.test",
		Password: "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, decode[dto.AuthResponse](t, body.Data).Token)

	status, _ = p.json(t, http.MethodPost, "/api/v1/auth/sign-up", "", dto.SignUpRequest{
		Name:     "Alice Again",
		Email:    "alice@school.test",
		Password: "correct-horse-battery",
		Role:     "student",
	})
	require.Equal(t, http.StatusConflict, status)
}
