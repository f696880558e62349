package minio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestObjectURLRoundTrip(t *testing.T) {
	svc := &Service{bucket: "portal", publicURL: "https://files.school.test"}

	ref := svc.objectURL("submissions/student-1/abc.pdf")
	require.Equal(t, "https://files.school.test/portal/submissions/student-1/abc.pdf", ref)

	key, err := svc.keyFromURL(ref)
	require.NoError(t, err)
	require.Equal(t, "submissions/student-1/abc.pdf", key)
}

func TestKeyFromURLRejectsOtherBuckets(t *testing.T) {
	svc := &Service{bucket: "portal", publicURL: "https://files.school.test"}

	_, err := svc.keyFromURL("https://files.school.test/other/abc.pdf")
	require.ErrorIs(t, err, ErrUnknownReference)

	_, err = svc.keyFromURL("https://files.school.test/portal/")
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestMimeForKey(t *testing.T) {
	require.Equal(t, "application/pdf", mimeForKey("a/b.PDF", "application/octet-stream"))
	require.Equal(t, "application/zip", mimeForKey("a/b.zip", "application/octet-stream"))
	require.Equal(t, "application/octet-stream", mimeForKey("a/b", "application/octet-stream"))
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{Bucket: "portal"}, zerolog.Nop())
	require.Error(t, err)
}
