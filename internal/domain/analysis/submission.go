package analysis

import (
	"path/filepath"
	"strings"
)

// AppTypes lists the application types the backend prompt knows about.
var AppTypes = []string{"Web", "API REST", "Mobile App", "Desktop", "Microservices", "Autre"}

// AttachmentExtensions are the description formats the backend can read.
var AttachmentExtensions = []string{".pdf", ".json", ".yaml", ".yml"}

// Attachment is an optional architecture description file.
type Attachment struct {
	Name    string
	Content []byte
}

// Submission is one request for analysis.
type Submission struct {
	ProjectName             string
	AppType                 string
	ArchitectureDescription string
	File                    *Attachment
	// UserID is sent when an identity is active so the backend can file the run.
	UserID string
}

// KnownAppType reports whether t is one of AppTypes.
func KnownAppType(t string) bool {
	for _, v := range AppTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AllowedAttachment reports whether the file extension is accepted.
func AllowedAttachment(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, v := range AttachmentExtensions {
		if v == ext {
			return true
		}
	}
	return false
}
