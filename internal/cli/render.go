package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/client"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/poller"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/submission"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
)

var stateIcons = map[types.JobState]string{
	types.StateNotStarted: "⏳",
	types.StateTriggered:  "🔄",
	types.StateCompleted:  "✅",
}

func renderValidation(w io.Writer, result submission.Result) {
	if result.Valid() {
		fmt.Fprintf(w, "✅ %d valid IDs: %s\n", len(result.IDs), formatIDs(result.IDs))
		return
	}

	fmt.Fprintln(w, "❌ Validation failed:")
	for _, msg := range result.Messages() {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}

func renderView(w io.Writer, v poller.View) {
	if v.Err != nil {
		fmt.Fprintf(w, "❌ Job %s: %s\n", v.Handle, errorMessage(v.Err))
		return
	}
	if v.Status == nil {
		fmt.Fprintf(w, "📦 Job %s: no status loaded\n", v.Handle)
		return
	}

	s := v.Status
	fmt.Fprintf(w, "📦 Job %s  %s %s", v.Handle, stateIcons[s.Status], s.Status)
	if s.Priority != "" {
		fmt.Fprintf(w, "  priority %s", s.Priority)
	}
	fmt.Fprintln(w)

	counts := s.CountByState()
	fmt.Fprintf(w, "  ├─ Progress:     %.1f%% (%d/%d batches)\n", v.Progress(), counts[types.StateCompleted], len(s.Batches))
	fmt.Fprintf(w, "  ├─ Batches:      ✅ %d completed  🔄 %d triggered  ⏳ %d not started\n",
		counts[types.StateCompleted], counts[types.StateTriggered], counts[types.StateNotStarted])
	if s.CreatedAt != nil && !s.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  ├─ Created:      %s\n", s.CreatedAt)
	}
	fmt.Fprintf(w, "  └─ Last updated: %s\n", v.LastUpdated.Local().Format("15:04:05"))

	for _, b := range s.Batches {
		fmt.Fprintf(w, "     %s %-12s %-11s %d IDs\n", stateIcons[b.Status], b.BatchID, b.Status, len(b.IDs))
	}
}

func errorMessage(err error) string {
	switch client.KindOf(err) {
	case client.KindMissingHandle:
		return "an ingestion id is required"
	case client.KindJobNotFound:
		return "job not found"
	default:
		return err.Error()
	}
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
