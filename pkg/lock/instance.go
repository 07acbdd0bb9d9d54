package lock

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// NewInstanceID builds the process identity used in cluster_nodes and
// lock bookkeeping: ${hostname}-${startEpochMs}-${nonce}. Assigned once
// at startup. HOSTNAME overrides the OS hostname when set.
func NewInstanceID() string {
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		} else {
			hostname = "unknown"
		}
	}

	nonce := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%d-%s", hostname, time.Now().UnixMilli(), nonce)
}
