// Package invalidation defines the mask regeneration event consumed from the
// message bus.
package invalidation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Event announces that precomputed shadow masks changed and their cached
// copies must be dropped. Month and slot narrow the affected masks; when
// absent the whole tile is invalidated.
type Event struct {
	Version uint64    `json:"version"`
	Op      string    `json:"op"`
	TileID  string    `json:"tile_id"`
	Month   int       `json:"month,omitempty"`
	Slot    string    `json:"slot,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

var tileIDPattern = regexp.MustCompile(`^-?\d+_-?\d+$`)

func (e Event) Validate() error {
	if e.Version == 0 {
		return fmt.Errorf("version is required")
	}
	switch e.Op {
	case "regenerate", "delete":
	default:
		return fmt.Errorf("op must be regenerate|delete")
	}
	if strings.TrimSpace(e.TileID) == "" {
		return fmt.Errorf("tile_id is required")
	}
	if !tileIDPattern.MatchString(e.TileID) {
		return fmt.Errorf("tile_id must look like x_y")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Month != 0 && (e.Month < 1 || e.Month > 12) {
		return fmt.Errorf("month must be in [1,12]")
	}
	switch e.Slot {
	case "", "morning", "noon", "afternoon":
	default:
		return fmt.Errorf("slot must be morning|noon|afternoon")
	}
	if e.Slot != "" && e.Month == 0 {
		return fmt.Errorf("slot requires month")
	}
	return nil
}
