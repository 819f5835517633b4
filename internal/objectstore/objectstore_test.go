package objectstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/estateiq/estateiq/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocumentAcceptsWhitelist(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want string
	}{
		{"rent-roll.csv", []byte("unit,rent\n1A,2400\n"), MimeCSV},
		{"Report.PDF", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3"), MimePDF},
		{"comps.xlsx", []byte("PK\x03\x04\x14\x00\x06\x00"), MimeXLSX},
		{"legacy.xls", []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1\x00\x00"), MimeXLS},
	}
	for _, tc := range cases {
		got, err := ValidateDocument(tc.name, int64(len(tc.head)), tc.head)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestValidateDocumentRejects(t *testing.T) {
	_, err := ValidateDocument("photo.png", 4, []byte("\x89PNG"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ValidateDocument("fake.pdf", 20, []byte("<html><body>hi</body></html>"))
	assert.ErrorIs(t, err, ErrContentMismatch)

	_, err = ValidateDocument("data.csv", 0, nil)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = ValidateDocument("big.csv", MaxUploadBytes+1, []byte("a,b"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	assert.Equal(t, "u1/1700000000123-rent_roll.csv", ObjectKey("u1", now, "rent roll.csv"))
	assert.Equal(t, "u1/1700000000123-passwd", ObjectKey("u1", now, "../../etc/passwd"))
	assert.Equal(t, "u1/1700000000123-evil.pdf", ObjectKey("u1", now, `C:\docs\evil.pdf`))
	assert.Equal(t, "u1/1700000000123-upload", ObjectKey("u1", now, ""))
}

func TestMemoryStorePut(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "u1/a.csv", bytes.NewReader([]byte("a,b")), 3, MimeCSV))

	obj, ok := store.Get("u1/a.csv")
	require.True(t, ok)
	assert.Equal(t, "a,b", string(obj.Body))
	assert.Equal(t, MimeCSV, obj.ContentType)
	assert.Equal(t, 1, store.Len())
}

func TestNewS3StoreDisabledWithoutBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestS3StorePutUsesPathStyleEndpoint(t *testing.T) {
	var (
		mu          sync.Mutex
		gotMethod   string
		gotPath     string
		gotBody     []byte
		gotMimeType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody = body
		gotMimeType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewS3Store(context.Background(), config.S3Config{
		Bucket:          "estateiq-uploads",
		Region:          "us-east-1",
		EndpointURL:     server.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	payload := []byte("unit,rent\n1A,2400\n")
	require.NoError(t, store.Put(context.Background(), "u1/1-rent.csv", bytes.NewReader(payload), int64(len(payload)), MimeCSV))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/estateiq-uploads/u1/1-rent.csv", gotPath)
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, MimeCSV, gotMimeType)
}
