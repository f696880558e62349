package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignment-portal/internal/models"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	db, err := ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.True(t, db.Migrator().HasTable(&models.Assignment{}))
	require.True(t, db.Migrator().HasTable(&models.SubmissionGradeHistory{}))
	require.True(t, db.Migrator().HasIndex(&models.Submission{}, "idx_submission_assignment_student"))
}

func TestConnectRejectsEmptyURLs(t *testing.T) {
	_, err := ConnectPostgres("")
	require.Error(t, err)

	_, err = ConnectRedis("")
	require.Error(t, err)

	_, err = ConnectNATS("", "portal")
	require.Error(t, err)
}
