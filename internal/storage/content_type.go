package storage

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType determines the MIME type of an object.
//
// An explicit type wins, then the key's extension, then sniffing of head
// (the first bytes of the content, may be nil). The fallback is
// application/octet-stream.
func DetectContentType(providedType, key string, head []byte) string {
	if providedType != "" {
		return providedType
	}

	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(key))); ct != "" {
		return ct
	}

	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}

// BaseType strips parameters and normalizes case: "Image/JPEG; q=1" becomes
// "image/jpeg".
func BaseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(base))
}

// SniffImageType returns the image type detected from the content, or ""
// when the bytes are not a recognised image. Uploads are trusted on their
// bytes, not on the declared header.
func SniffImageType(head []byte) string {
	ct := BaseType(http.DetectContentType(head))
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return ""
}
