package objectstore

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxUploadBytes bounds a single uploaded document.
const MaxUploadBytes = 20 << 20

// Document MIME types accepted for upload.
const (
	MimeCSV  = "text/csv"
	MimeXLS  = "application/vnd.ms-excel"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePDF  = "application/pdf"
)

var (
	// ErrUnsupportedType is returned for files outside the CSV/XLS/XLSX/PDF whitelist.
	ErrUnsupportedType = errors.New("only CSV, XLS, XLSX and PDF files are supported")
	// ErrContentMismatch is returned when the file content does not match its extension.
	ErrContentMismatch = errors.New("file content does not match its extension")
	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")
	// ErrTooLarge is returned for files above MaxUploadBytes.
	ErrTooLarge = errors.New("file is too large")
)

var mimeByExt = map[string]string{
	".csv":  MimeCSV,
	".xls":  MimeXLS,
	".xlsx": MimeXLSX,
	".pdf":  MimePDF,
}

// sniffedByExt lists the http.DetectContentType results each extension may produce.
var sniffedByExt = map[string][]string{
	".csv":  {"text/plain"},
	".xls":  {"application/octet-stream"},
	".xlsx": {"application/zip", "application/octet-stream"},
	".pdf":  {"application/pdf"},
}

// ValidateDocument checks the file name and leading bytes against the document whitelist
// and returns the canonical MIME type to store.
func ValidateDocument(filename string, size int64, head []byte) (string, error) {
	if size == 0 || len(head) == 0 {
		return "", ErrEmptyFile
	}
	if size > MaxUploadBytes {
		return "", ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	canonical, ok := mimeByExt[ext]
	if !ok {
		return "", ErrUnsupportedType
	}

	detected := http.DetectContentType(head)
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "text/xml") {
		return "", ErrContentMismatch
	}
	for _, allowed := range sniffedByExt[ext] {
		if strings.HasPrefix(detected, allowed) {
			return canonical, nil
		}
	}
	return "", ErrContentMismatch
}
