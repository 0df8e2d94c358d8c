package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newMessageID builds a message identifier of the form
// "{epochMillis}-{uuidV4}". The millisecond prefix keeps identifiers roughly
// sortable by creation time; the UUID half makes them unique.
func newMessageID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
}

// ValidMessageID reports whether s has the message identifier shape: a first
// dash-separated segment that parses as a signed 64-bit integer, followed by
// five segments forming a lexically valid UUID.
func ValidMessageID(s string) bool {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return false
	}
	if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
		return false
	}
	if strings.Count(parts[1], "-") != 4 {
		return false
	}
	_, err := uuid.Parse(parts[1])
	return err == nil
}
