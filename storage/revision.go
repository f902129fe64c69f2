package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// newDocumentID returns a 32 character hex ID in the style CouchDB assigns.
func newDocumentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// nextRevision returns the revision following prev. Revisions are "N-<hex>" where N counts writes.
func nextRevision(prev string) string {
	n := 0
	if i := strings.IndexByte(prev, '-'); i > 0 {
		n, _ = strconv.Atoi(prev[:i])
	}
	return fmt.Sprintf("%d-%s", n+1, newDocumentID())
}
