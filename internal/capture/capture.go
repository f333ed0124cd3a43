// Package capture turns a live text selection into a storage-independent
// position, from either an offset-addressable editor or a rendered tree.
package capture

import (
	"fmt"

	"github.com/rcliao/margin/internal/model"
)

// Result is a captured selection ready to become an annotation.
type Result struct {
	Doc      string         `json:"doc"`
	Text     string         `json:"text"`
	Position model.Position `json:"position"`
}

// Capturer produces a Result from the current selection. Failures wrap
// model.ErrCaptureFailed; callers abort creation and tell the user.
type Capturer interface {
	Capture() (Result, error)
}

func failed(reason string) error {
	return fmt.Errorf("%w: %s", model.ErrCaptureFailed, reason)
}
