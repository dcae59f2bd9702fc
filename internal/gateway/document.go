package gateway

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/uestcbean/phoebe-service/internal/storage"
)

// BuildDocument serializes a note into the plain-text document uploaded
// to the knowledge base. Fields appear on labeled lines in a fixed
// order; absent fields are omitted so the document stays deterministic
// for a given note.
func BuildDocument(note *storage.Note) []byte {
	var sb strings.Builder

	if note.Title != "" {
		sb.WriteString("Title: ")
		sb.WriteString(note.Title)
		sb.WriteString("\n\n")
	}
	if note.Content != "" {
		sb.WriteString("Content: ")
		sb.WriteString(note.Content)
		sb.WriteString("\n\n")
	}
	if note.Comment != "" {
		sb.WriteString("Comment: ")
		sb.WriteString(note.Comment)
		sb.WriteString("\n\n")
	}
	if len(note.Tags) > 0 {
		sb.WriteString("Tags: ")
		sb.WriteString(strings.Join(note.Tags, ", "))
		sb.WriteString("\n\n")
	}
	if note.Source != "" {
		sb.WriteString("Source: ")
		sb.WriteString(note.Source)
		sb.WriteString("\n")
	}
	if !note.CreatedAt.IsZero() {
		sb.WriteString("Created: ")
		sb.WriteString(note.CreatedAt.UTC().Format(time.RFC3339))
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}

// Checksum returns the hex MD5 of document content, as required by the
// upload lease request.
func Checksum(content []byte) string {
	return fmt.Sprintf("%x", md5.Sum(content))
}
