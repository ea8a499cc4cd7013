package survey

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gofrs/uuid"
)

// NewID returns an opaque identifier for surveys, steps, fields and options.
// UUID v4 when the system entropy source cooperates; otherwise a
// time+randomness concatenation whose collision avoidance within the same
// millisecond is best-effort only.
func NewID() string {
	if id, err := uuid.NewV4(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("id_%x_%x", rand.Uint64(), time.Now().UnixMilli())
}
