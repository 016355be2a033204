package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"civis/internal/ledger/store"
	dErrors "civis/pkg/domain-errors"
)

var csvHeader = []string{
	"id", "timestamp", "event_type", "result", "subject_id",
	"identifier_hash", "details", "session_id", "previous_hash", "current_hash",
}

// ExportCSV streams matching events as CSV for compliance tooling. The same
// filter semantics as Query apply, including the result cap.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer, filter store.Filter) error {
	events, err := l.Query(ctx, filter)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not write CSV header")
	}
	for _, e := range events {
		row := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Type),
			string(e.Result),
			e.SubjectID,
			e.IdentifierHash,
			e.Details,
			e.SessionID,
			e.PreviousHash,
			e.CurrentHash,
		}
		if err := writer.Write(row); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not write CSV row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not flush CSV output")
	}
	return nil
}
