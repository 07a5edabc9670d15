package model

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/uptrace/bun"
)

// Mailbox is one account known to the engine, identified by its smtp
// address.
type Mailbox struct {
	bun.BaseModel `bun:"table:mailboxes"`

	ID          string `bun:"id,pk,notnull"` // smtp address
	DisplayName string `bun:"display_name"`

	CreatedAt int64 `bun:"created_at,notnull"`
}

func (m *Mailbox) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case m.ID == "":
		return fmt.Errorf("Mailbox.Upsert: id is required")
	case m.CreatedAt == 0:
		return fmt.Errorf("Mailbox.Upsert: created at is required")
	}
	if _, err := mail.ParseAddress(m.ID); err != nil {
		return fmt.Errorf("Mailbox.Upsert: id is not a valid address: %w", err)
	}

	if _, err := db.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Exec(ctx); err != nil {
		return fmt.Errorf("Mailbox.Upsert: %w", err)
	}
	return nil
}

// Delegate grants another mailbox a copy of meeting traffic addressed to
// the principal. Only rows with ReceivesCopy actually generate
// PrincipalWantsCopy messages.
type Delegate struct {
	bun.BaseModel `bun:"table:delegates"`

	PrincipalID  string `bun:"principal_id,notnull"` // required
	DelegateID   string `bun:"delegate_id,notnull"`  // required
	ReceivesCopy bool   `bun:"receives_copy"`

	CreatedAt int64 `bun:"created_at,notnull"`
}

func (d *Delegate) Upsert(ctx context.Context, db bun.IDB) error {
	switch {
	case d.PrincipalID == "":
		return fmt.Errorf("Delegate.Upsert: principal id is required")
	case d.DelegateID == "":
		return fmt.Errorf("Delegate.Upsert: delegate id is required")
	case d.PrincipalID == d.DelegateID:
		return fmt.Errorf("Delegate.Upsert: a mailbox can't delegate to itself")
	case d.CreatedAt == 0:
		return fmt.Errorf("Delegate.Upsert: created at is required")
	}

	exist, err := db.NewSelect().
		Model((*Delegate)(nil)).
		Where("principal_id = ?", d.PrincipalID).
		Where("delegate_id = ?", d.DelegateID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("Delegate.Upsert: %w", err)
	}
	if exist {
		if _, err := db.NewUpdate().
			Model(d).
			Column("receives_copy").
			Where("principal_id = ?", d.PrincipalID).
			Where("delegate_id = ?", d.DelegateID).
			Exec(ctx); err != nil {
			return fmt.Errorf("Delegate.Upsert: %w", err)
		}
		return nil
	}
	if _, err := db.NewInsert().
		Model(d).
		Exec(ctx); err != nil {
		return fmt.Errorf("Delegate.Upsert: %w", err)
	}
	return nil
}
