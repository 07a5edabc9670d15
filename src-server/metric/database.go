package metric

import (
	"context"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/utils"
)

func database(as *utils.AppState) (time.Duration, error) {
	start := time.Now()
	if _, err := as.BunDB.NewSelect().
		Model((*model.CalendarItem)(nil)).
		Where("mailbox_id = ?", "").
		Exists(context.Background()); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func undelivered(as *utils.AppState) (int, error) {
	return as.BunDB.NewSelect().
		Model((*model.MeetingMessage)(nil)).
		Where("folder_id = ?", model.FolderInbox).
		Where("delivered = ?", false).
		Count(context.Background())
}
