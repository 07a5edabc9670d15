package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/utils"

	"github.com/uptrace/bun"
)

// Hub moves meeting messages between mailboxes. Delivery is asynchronous
// and fire-and-forget from the sender's side: Enqueue persists the
// message row and nudges the recipient's worker; the worker (and the
// periodic sweep) applies calendar side effects at-least-once, so Apply
// stays idempotent.
type Hub struct {
	db         *bun.DB
	locks      *utils.KeyedMutex
	metric     *utils.Metric
	resolveCap int

	mu      sync.Mutex
	wake    map[string]chan struct{}
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewHub(db *bun.DB, locks *utils.KeyedMutex, metricChans *utils.Metric, resolveCap int) *Hub {
	return &Hub{
		db:         db,
		locks:      locks,
		metric:     metricChans,
		resolveCap: resolveCap,
		wake:       make(map[string]chan struct{}),
		stop:       make(chan struct{}),
	}
}

// Enqueue persists the message for its recipient and wakes the worker.
// The sender never waits for delivery.
func (h *Hub) Enqueue(ctx context.Context, messageModel *model.MeetingMessage) error {
	if err := messageModel.Insert(ctx, h.db); err != nil {
		return fmt.Errorf("Hub.Enqueue: %w", err)
	}
	h.nudge(messageModel.MailboxID)
	return nil
}

func (h *Hub) nudge(mailboxID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	ch, ok := h.wake[mailboxID]
	if !ok {
		ch = make(chan struct{}, 1)
		h.wake[mailboxID] = ch
		h.wg.Add(1)
		go h.worker(mailboxID, ch)
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *Hub) worker(mailboxID string, ch chan struct{}) {
	defer h.wg.Done()
	for {
		select {
		case <-h.stop:
			return
		case <-ch:
			if _, err := h.DeliverPending(context.Background(), mailboxID); err != nil {
				slog.Error("Hub.worker: delivery failed, leaving for sweep", "mailbox", mailboxID, "error", err)
			}
		}
	}
}

// DeliverPending applies every undelivered inbox message of one mailbox,
// oldest first. A message that fails stays undelivered for the sweep to
// retry; later messages are still attempted.
func (h *Hub) DeliverPending(ctx context.Context, mailboxID string) (int, error) {
	messageModels := make([]model.MeetingMessage, 0)
	if err := h.db.NewSelect().
		Model(&messageModels).
		Where("mailbox_id = ?", mailboxID).
		Where("folder_id = ?", model.FolderInbox).
		Where("delivered = ?", false).
		Order("created_at ASC").
		Order("sequence ASC").
		Scan(ctx); err != nil {
		return 0, fmt.Errorf("Hub.DeliverPending: %w", err)
	}

	delivered := 0
	var firstErr error
	for i := range messageModels {
		messageModel := &messageModels[i]
		startTimer := time.Now()
		if err := h.applyOne(ctx, messageModel); err != nil {
			slog.Error("Hub.DeliverPending: can't apply message",
				"message_id", messageModel.MessageID, "kind", messageModel.Kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if h.metric != nil {
			utils.Record(h.metric.MessageDelivery, float64(time.Since(startTimer).Microseconds()))
		}
		delivered++
	}
	return delivered, firstErr
}

func (h *Hub) applyOne(ctx context.Context, messageModel *model.MeetingMessage) error {
	// direct edits lock on the copy's item id, so contend on that once a
	// copy exists; before it does the uid key serializes concurrent
	// requests for the same meeting
	lockKey := utils.ItemKey(messageModel.MailboxID, messageModel.UID)
	var itemID string
	err := h.db.NewSelect().
		Model((*model.CalendarItem)(nil)).
		Column("item_id").
		Where("mailbox_id = ?", messageModel.MailboxID).
		Where("uid = ?", messageModel.UID).
		Where("folder_id = ?", model.FolderCalendar).
		Scan(ctx, &itemID)
	switch {
	case err == nil:
		lockKey = utils.ItemKey(messageModel.MailboxID, itemID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("Hub.applyOne: %w", err)
	}
	unlock := h.locks.Lock(lockKey)
	defer unlock()

	if err := Apply(ctx, h.db, h.resolveCap, messageModel); err != nil {
		return err
	}
	if _, err := h.db.NewUpdate().
		Model((*model.MeetingMessage)(nil)).
		Set("delivered = ?", true).
		Where("message_id = ?", messageModel.MessageID).
		Exec(ctx); err != nil {
		return fmt.Errorf("Hub.applyOne: can't mark delivered: %w", err)
	}
	return nil
}

// DeliverAllPending drains every mailbox with undelivered messages; the
// sweep calls this so a crashed worker never strands a message.
func (h *Hub) DeliverAllPending(ctx context.Context) (int, error) {
	mailboxIDs := make([]string, 0)
	if err := h.db.NewSelect().
		Model((*model.MeetingMessage)(nil)).
		ColumnExpr("DISTINCT mailbox_id").
		Where("folder_id = ?", model.FolderInbox).
		Where("delivered = ?", false).
		Scan(ctx, &mailboxIDs); err != nil {
		return 0, fmt.Errorf("Hub.DeliverAllPending: %w", err)
	}

	total := 0
	var firstErr error
	for _, mailboxID := range mailboxIDs {
		n, err := h.DeliverPending(ctx, mailboxID)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Stop shuts the workers down; pending messages stay persisted for the
// next start.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	close(h.stop)
	h.mu.Unlock()
	h.wg.Wait()
}
