package occurrence

import (
	"fmt"

	"groupcal/src-server/model"
	"groupcal/src-server/recurrence"
)

// RefreshCaches recomputes the cached first/last occurrence summaries a
// recurring master row carries. NoEnd series keep a zero last occurrence;
// an unbounded series is never expanded to find its end.
func RefreshCaches(itemModel *model.CalendarItem) error {
	if itemModel.Kind != model.KindRecurringMaster {
		itemModel.FirstOccurStart, itemModel.FirstOccurEnd = 0, 0
		itemModel.LastOccurStart, itemModel.LastOccurEnd = 0, 0
		return nil
	}
	rec, err := itemModel.Recurrence()
	if err != nil {
		return fmt.Errorf("occurrence.RefreshCaches: %w", err)
	}
	first, err := recurrence.Expand(rec.Pattern, rec.Range, itemModel.Duration(), 1)
	if err != nil {
		return fmt.Errorf("occurrence.RefreshCaches: %w", err)
	}
	if len(first) == 0 {
		return fmt.Errorf("occurrence.RefreshCaches: recurrence generated no occurrences")
	}
	itemModel.FirstOccurStart = first[0].Start.Unix()
	itemModel.FirstOccurEnd = first[0].End.Unix()

	last, ok, err := recurrence.Last(rec.Pattern, rec.Range, itemModel.Duration())
	if err != nil {
		return fmt.Errorf("occurrence.RefreshCaches: %w", err)
	}
	if ok {
		itemModel.LastOccurStart = last.Start.Unix()
		itemModel.LastOccurEnd = last.End.Unix()
	} else {
		itemModel.LastOccurStart, itemModel.LastOccurEnd = 0, 0
	}
	return nil
}
