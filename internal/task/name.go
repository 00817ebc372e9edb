package task

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultPrefix marks native jobs owned by this application.
const DefaultPrefix = "ScheduledTask"

// NameFunc generates a unique task name for the given prefix.
type NameFunc func(prefix string) string

// NewName returns prefix + "_" + 12 hex chars of a random UUID.
// The result contains no whitespace so it can be used verbatim as a
// crontab comment tag, an at(1) script marker and a Windows task name.
func NewName(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + id[:12]
}

// HasPrefix reports whether name was generated for prefix.
func HasPrefix(name, prefix string) bool {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return strings.HasPrefix(name, prefix+"_")
}
