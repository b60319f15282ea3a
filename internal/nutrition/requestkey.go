package nutrition

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// RequestKey derives the idempotency key for a submission, scope:owner:hash.
// scope separates job kinds ("image", "text", "fix") and owner is the user id
// or target entry id; both stay in plain text so a hash collision cannot cross
// owners. Returns nil when no request id was supplied.
func RequestKey(scope, owner, requestID string) *string {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil
	}
	d := xxhash.New()
	_, _ = d.WriteString(scope)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(owner)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(requestID)
	key := scope + ":" + owner + ":" + strconv.FormatUint(d.Sum64(), 16)
	return &key
}
