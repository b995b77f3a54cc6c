// Package debugtool renders a human-readable diff between two consecutive
// WorkerStateSnapshot values, used by fleetctl's "run" subcommand to log
// exactly what changed between successive Wait() calls instead of dumping
// the full cumulative state each time.
package debugtool

import (
	"encoding/json"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/worklet/fleet/pkg/fleet"
)

// DiffSnapshots returns an inline textual diff between prev and next, with
// insertions wrapped in green and deletions in red ANSI color codes. Both
// sides are rendered as pretty-printed JSON first so the diff aligns on
// logical fields rather than byte offsets.
func DiffSnapshots(prev, next fleet.WorkerStateSnapshot) (string, error) {
	prevJSON, err := json.MarshalIndent(prev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("debugtool: marshal previous snapshot: %w", err)
	}
	nextJSON, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return "", fmt.Errorf("debugtool: marshal next snapshot: %w", err)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(prevJSON), string(nextJSON), false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs), nil
}
