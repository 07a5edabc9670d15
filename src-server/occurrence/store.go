package occurrence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/recurrence"

	"github.com/uptrace/bun"
)

var (
	// the index resolves to a deletion tombstone
	ErrOccurrenceDeleted = errors.New("occurrence was deleted")
	// the id given as a recurring master does not resolve to one
	ErrNotRecurringMaster = errors.New("id does not resolve to a recurring master")
	// the index is outside the pattern-generated sequence
	ErrIndexOutOfRange = errors.New("occurrence index out of range")
)

// DefaultResolveCap bounds how far into a NoEnd series an index may be
// resolved. Unbounded series are never expanded in full.
const DefaultResolveCap = 1000

// Store resolves (master, instanceIndex) pairs against the recurrence
// pattern and the stored exception rows.
type Store struct {
	db  bun.IDB
	cap int
}

func NewStore(db bun.IDB, resolveCap int) *Store {
	if resolveCap < 1 {
		resolveCap = DefaultResolveCap
	}
	return &Store{db: db, cap: resolveCap}
}

// Resolved is one occurrence after exception reconciliation. Exception is
// nil for a plain pattern-computed occurrence. OriginalStart/End always
// hold the pattern-computed window.
type Resolved struct {
	MasterItemID  string
	InstanceIndex int
	Start         time.Time
	End           time.Time
	Subject       string
	Location      string
	OriginalStart time.Time
	OriginalEnd   time.Time
	Exception     *model.OccurrenceException
}

// master fetches and checks the recurring master row.
func (s *Store) master(ctx context.Context, masterItemID string) (*model.CalendarItem, recurrence.Recurrence, error) {
	masterModel := new(model.CalendarItem)
	if err := s.db.NewSelect().
		Model(masterModel).
		Where("item_id = ?", masterItemID).
		Scan(ctx, masterModel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recurrence.Recurrence{}, fmt.Errorf("Store.master: %w", ErrNotRecurringMaster)
		}
		return nil, recurrence.Recurrence{}, fmt.Errorf("Store.master: %w", err)
	}
	if masterModel.Kind != model.KindRecurringMaster {
		return nil, recurrence.Recurrence{}, fmt.Errorf("Store.master: kind=%s: %w", masterModel.Kind, ErrNotRecurringMaster)
	}
	rec, err := masterModel.Recurrence()
	if err != nil {
		return nil, recurrence.Recurrence{}, fmt.Errorf("Store.master: %w", err)
	}
	return masterModel, rec, nil
}

// Resolve maps an instance index to its reconciled occurrence: the base
// pattern window, a stored replacement, or ErrOccurrenceDeleted for a
// tombstone. Resolution is read-only and idempotent.
func (s *Store) Resolve(ctx context.Context, masterItemID string, index int) (*Resolved, error) {
	masterModel, rec, err := s.master(ctx, masterItemID)
	if err != nil {
		return nil, err
	}

	base, ok, err := recurrence.At(rec.Pattern, rec.Range, masterModel.Duration(), index, s.cap)
	if err != nil {
		return nil, fmt.Errorf("Store.Resolve: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("Store.Resolve: index=%d: %w", index, ErrIndexOutOfRange)
	}

	resolved := &Resolved{
		MasterItemID:  masterItemID,
		InstanceIndex: index,
		Start:         base.Start,
		End:           base.End,
		Subject:       masterModel.Subject,
		Location:      masterModel.Location,
		OriginalStart: base.Start,
		OriginalEnd:   base.End,
	}

	exceptionModel := new(model.OccurrenceException)
	err = s.db.NewSelect().
		Model(exceptionModel).
		Where("master_item_id = ?", masterItemID).
		Where("instance_index = ?", index).
		Scan(ctx, exceptionModel)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return resolved, nil
	case err != nil:
		return nil, fmt.Errorf("Store.Resolve: %w", err)
	}

	if exceptionModel.Deleted {
		return nil, fmt.Errorf("Store.Resolve: index=%d: %w", index, ErrOccurrenceDeleted)
	}
	resolved.Start = time.Unix(exceptionModel.StartDate, 0).UTC()
	resolved.End = time.Unix(exceptionModel.EndDate, 0).UTC()
	if exceptionModel.Subject != "" {
		resolved.Subject = exceptionModel.Subject
	}
	if exceptionModel.Location != "" {
		resolved.Location = exceptionModel.Location
	}
	resolved.Exception = exceptionModel
	return resolved, nil
}

// First resolves index 1.
func (s *Store) First(ctx context.Context, masterItemID string) (*Resolved, error) {
	return s.Resolve(ctx, masterItemID, 1)
}

// Last resolves the final index of a bounded series. NoEnd series have no
// last occurrence and fail with ErrIndexOutOfRange.
func (s *Store) Last(ctx context.Context, masterItemID string) (*Resolved, error) {
	masterModel, rec, err := s.master(ctx, masterItemID)
	if err != nil {
		return nil, err
	}
	last, ok, err := recurrence.Last(rec.Pattern, rec.Range, masterModel.Duration())
	if err != nil {
		return nil, fmt.Errorf("Store.Last: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("Store.Last: unbounded series: %w", ErrIndexOutOfRange)
	}
	return s.Resolve(ctx, masterItemID, last.Index)
}

// Modified enumerates the replacement exceptions for display on the
// master, ordered by instance index.
func (s *Store) Modified(ctx context.Context, masterItemID string) ([]model.OccurrenceException, error) {
	return s.exceptions(ctx, masterItemID, false)
}

// Deleted enumerates the tombstones for display on the master, ordered by
// instance index.
func (s *Store) Deleted(ctx context.Context, masterItemID string) ([]model.OccurrenceException, error) {
	return s.exceptions(ctx, masterItemID, true)
}

func (s *Store) exceptions(ctx context.Context, masterItemID string, deleted bool) ([]model.OccurrenceException, error) {
	exceptionModels := make([]model.OccurrenceException, 0)
	if err := s.db.NewSelect().
		Model(&exceptionModels).
		Where("master_item_id = ?", masterItemID).
		Where("deleted = ?", deleted).
		Order("instance_index ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("Store.exceptions: %w", err)
	}
	return exceptionModels, nil
}

// Modification is the replacement content for one occurrence. Zero/blank
// fields inherit from the base occurrence.
type Modification struct {
	Start    time.Time
	End      time.Time
	Subject  string
	Location string
}

// Modify writes (or overwrites) a replacement exception for the index.
// The pattern-computed window is preserved as the original window even
// when the exception is rewritten repeatedly.
func (s *Store) Modify(ctx context.Context, masterItemID string, index int, mod Modification) (*model.OccurrenceException, error) {
	masterModel, rec, err := s.master(ctx, masterItemID)
	if err != nil {
		return nil, err
	}
	base, ok, err := recurrence.At(rec.Pattern, rec.Range, masterModel.Duration(), index, s.cap)
	if err != nil {
		return nil, fmt.Errorf("Store.Modify: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("Store.Modify: index=%d: %w", index, ErrIndexOutOfRange)
	}

	start := mod.Start
	if start.IsZero() {
		start = base.Start
	}
	end := mod.End
	if end.IsZero() {
		end = start.Add(base.End.Sub(base.Start))
	}

	now := time.Now().UTC().Unix()
	exceptionModel := &model.OccurrenceException{
		MasterItemID:  masterItemID,
		InstanceIndex: index,
		OriginalStart: base.Start.Unix(),
		OriginalEnd:   base.End.Unix(),
		StartDate:     start.Unix(),
		EndDate:       end.Unix(),
		Subject:       mod.Subject,
		Location:      mod.Location,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := exceptionModel.Upsert(ctx, s.db); err != nil {
		return nil, fmt.Errorf("Store.Modify: %w", err)
	}
	return exceptionModel, nil
}

// Delete writes a deletion tombstone for the index, keeping the original
// window for the master's deletedOccurrences display.
func (s *Store) Delete(ctx context.Context, masterItemID string, index int) (*model.OccurrenceException, error) {
	masterModel, rec, err := s.master(ctx, masterItemID)
	if err != nil {
		return nil, err
	}
	base, ok, err := recurrence.At(rec.Pattern, rec.Range, masterModel.Duration(), index, s.cap)
	if err != nil {
		return nil, fmt.Errorf("Store.Delete: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("Store.Delete: index=%d: %w", index, ErrIndexOutOfRange)
	}

	now := time.Now().UTC().Unix()
	exceptionModel := &model.OccurrenceException{
		MasterItemID:  masterItemID,
		InstanceIndex: index,
		Deleted:       true,
		OriginalStart: base.Start.Unix(),
		OriginalEnd:   base.End.Unix(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := exceptionModel.Upsert(ctx, s.db); err != nil {
		return nil, fmt.Errorf("Store.Delete: %w", err)
	}
	return exceptionModel, nil
}
