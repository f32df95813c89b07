// Package id provides identifier generation for generation tasks.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix starts every task ID.
const Prefix = "vpro"

// Generate creates a new unique task ID.
// Format: vpro-<unix millis>-<lane>-<index>-<random>
// Example: vpro-1701432000123-2-1-a1b2c3d4
func Generate(lane string, index int) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s-%d-%s", Prefix, time.Now().UnixMilli(), lane, index, random)
}
