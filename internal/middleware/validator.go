package middleware

import (
	"fmt"
	"strings"
	"unicode/utf8"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

// MaxUploadSize bounds the optional architecture attachment.
const MaxUploadSize = 10 << 20

// ValidateProjectParam checks a project name taken from the URL.
func ValidateProjectParam(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 200 {
		return fmt.Errorf("project name too long")
	}
	if strings.ContainsAny(name, "\x00\r\n") {
		return fmt.Errorf("invalid characters in project name")
	}
	return nil
}

// ValidateUpload checks the attachment name and size before it is buffered.
func ValidateUpload(name string, size int64) error {
	if !domain.AllowedAttachment(name) {
		return &domain.ValidationError{Field: "file", Message: "Format de fichier non supporté (.pdf, .json, .yaml, .yml)"}
	}
	if size > MaxUploadSize {
		return &domain.ValidationError{Field: "file", Message: "Fichier trop volumineux (10 Mo maximum)"}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
