package route

import (
	"net/http"

	"groupcal/src-server/ical"
	"groupcal/src-server/model"
	"groupcal/src-server/utils"
)

func Ical(muxer *http.ServeMux, as *utils.AppState) {
	// export a mailbox's calendar folder as an iCalendar stream
	muxer.HandleFunc("GET /mailbox/{mailbox_id}/calendar.ics", func(w http.ResponseWriter, r *http.Request) {
		mailboxID := r.PathValue("mailbox_id")
		if mailboxID == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Please provide a mailbox ID"))
			return
		}

		itemModels := make([]*model.CalendarItem, 0)
		if err := as.BunDB.
			NewSelect().
			Model(&itemModels).
			Where("mailbox_id = ?", mailboxID).
			Where("folder_id = ?", model.FolderCalendar).
			Relation("Attendees").
			Scan(r.Context()); err != nil {
			http.Error(w, "Can't get calendar items", http.StatusInternalServerError)
			return
		}

		entries := make([]ical.Entry, 0, len(itemModels))
		for _, itemModel := range itemModels {
			entry := ical.Entry{Item: itemModel}
			if itemModel.Kind == model.KindRecurringMaster {
				exceptionModels := make([]model.OccurrenceException, 0)
				if err := as.BunDB.
					NewSelect().
					Model(&exceptionModels).
					Where("master_item_id = ?", itemModel.ItemID).
					Order("instance_index ASC").
					Scan(r.Context()); err != nil {
					http.Error(w, "Can't get occurrence exceptions", http.StatusInternalServerError)
					return
				}
				entry.Exceptions = exceptionModels
			}
			entries = append(entries, entry)
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := ical.Encode(w, "-//groupcal//calendar//EN", entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
