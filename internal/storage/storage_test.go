package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir(), BaseURL: "http://localhost:8080/files/"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)
	key := PhotoKey(uuid.New(), uuid.New(), ".jpg")

	require.NoError(t, s.Put(ctx, key, strings.NewReader("jpeg bytes"), PutOptions{}))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpeg bytes", string(body))
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)

	url, err := s.URL(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/"+key, url)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "delete is idempotent")

	_, _, err = s.Get(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_PutOptions(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	require.NoError(t, s.Put(ctx, "a.txt", strings.NewReader("one"), PutOptions{}))

	err := s.Put(ctx, "a.txt", strings.NewReader("two"), PutOptions{})
	assert.True(t, errors.Is(err, ErrKeyExists))

	require.NoError(t, s.Put(ctx, "a.txt", strings.NewReader("two"), PutOptions{Overwrite: true}))

	err = s.Put(ctx, "big.bin", strings.NewReader("0123456789"), PutOptions{MaxSize: 5})
	assert.True(t, errors.Is(err, ErrTooLarge))
	exists, _ := s.Exists(ctx, "big.bin")
	assert.False(t, exists, "oversized upload is removed")
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := newLocal(t)

	for _, key := range []string{"", "../etc/passwd", "requests/../../x", "/abs/path"} {
		t.Run(key, func(t *testing.T) {
			err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
			assert.True(t, errors.Is(err, ErrInvalidKey), "got %v", err)
		})
	}
}

func TestLocalStorage_Handler(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)
	key := ThumbnailKey(uuid.New(), uuid.New())
	require.NoError(t, s.Put(ctx, key, strings.NewReader("thumb"), PutOptions{}))

	h := http.StripPrefix("/files", s.Handler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+key, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thumb", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/requests/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no directory listings")
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "text/plain", DetectContentType("text/plain", "a.jpg", nil))
	assert.Equal(t, "image/png", DetectContentType("", "a.PNG", nil))
	assert.Equal(t, "image/jpeg", DetectContentType("", "noext", []byte("\xff\xd8\xff\xe0")))
	assert.Equal(t, "application/octet-stream", DetectContentType("", "noext", nil))
}

func TestSniffImageType(t *testing.T) {
	assert.Equal(t, "image/png", SniffImageType([]byte("\x89PNG\r\n\x1a\n")))
	assert.Empty(t, SniffImageType([]byte("<html>")))
	assert.Equal(t, "image/jpeg", BaseType("Image/JPEG; q=1"))
}

func TestWrapS3Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, ErrNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapS3Error(tt.err), tt.want)
		})
	}

	other := wrapS3Error(errors.New("timeout"))
	assert.NotErrorIs(t, other, ErrNotFound)
	assert.Contains(t, other.Error(), "timeout")
}

func TestToDomain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"too large", &StorageError{Op: "Put", Key: "k", Err: ErrTooLarge}, domain.ETOOLARGE},
		{"missing", &StorageError{Op: "Get", Key: "k", Err: ErrNotFound}, domain.ENOTFOUND},
		{"taken", &StorageError{Op: "Put", Key: "k", Err: ErrKeyExists}, domain.ECONFLICT},
		{"denied", wrapS3Error(&smithy.GenericAPIError{Code: "AccessDenied"}), domain.EINTERNAL},
		{"plain", errors.New("disk full"), domain.EINTERNAL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ToDomain(tt.err, "photo.upload", "failed to store photo")
			assert.Equal(t, tt.code, domain.ErrorCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
