package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// FileStorage abstracts the blob store holding instructions and submission files.
type FileStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

const defaultUploadMaxBytes = 10 * 1024 * 1024

var (
	instructionMimeTypes = []string{"application/pdf"}
	submissionMimeTypes  = []string{"application/pdf", "application/zip", "application/x-zip-compressed", "text/plain"}
)

// stagedUpload is a fully buffered, type-checked file ready for the blob store.
type stagedUpload struct {
	key      string
	contents []byte
}

func (u stagedUpload) reader() io.Reader {
	return bytes.NewReader(u.contents)
}

// stageUpload buffers the file, enforces the size ceiling and the MIME allow list and
// derives the blob key below prefix.
func stageUpload(file *multipart.FileHeader, prefix string, allowed []string, maxBytes int64) (stagedUpload, error) {
	if maxBytes <= 0 {
		maxBytes = defaultUploadMaxBytes
	}
	if file.Size > maxBytes {
		return stagedUpload{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return stagedUpload{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxBytes+1)); err != nil {
		return stagedUpload{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(buf.Len()) > maxBytes {
		return stagedUpload{}, ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	if !mimeAllowed(detected, allowed) {
		return stagedUpload{}, fmt.Errorf("%w: %s", ErrUploadTypeNotAllowed, detected.String())
	}

	if detected.Is("application/zip") {
		if err := scanArchive(buf.Bytes(), maxBytes); err != nil {
			return stagedUpload{}, err
		}
	}

	return stagedUpload{
		key:      blobKey(prefix, file.Filename, detected.Extension()),
		contents: buf.Bytes(),
	}, nil
}

func mimeAllowed(detected *mimetype.MIME, allowed []string) bool {
	for mime := detected; mime != nil; mime = mime.Parent() {
		for _, candidate := range allowed {
			if mime.Is(candidate) {
				return true
			}
		}
	}
	return false
}

func scanArchive(payload []byte, maxBytes int64) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(maxBytes*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}
	return nil
}

// blobKey builds "<prefix>/<random>.<ext>", preferring the client extension.
func blobKey(prefix, filename, detectedExt string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext == "" || len(ext) > 10 {
		ext = detectedExt
	}
	if ext == "" {
		ext = ".bin"
	}
	return path.Join(prefix, strings.ReplaceAll(uuid.NewString(), "-", "")+ext)
}

func assignmentBlobPrefix() string {
	return "assignments"
}

func submissionBlobPrefix(studentID string) string {
	return path.Join("submissions", studentID)
}
