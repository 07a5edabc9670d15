package route

import (
	"encoding/json"
	"net/http"
	"time"

	"groupcal/src-server/engine"
	"groupcal/src-server/recurrence"
	"groupcal/src-server/scheduling"
	"groupcal/src-server/utils"

	"github.com/samber/mo"
)

func Items(muxer *http.ServeMux, as *utils.AppState, eng *engine.Engine) {
	type OneNewItem struct {
		ItemClass string `json:"itemClass"`

		Subject          string `json:"subject"`
		Location         string `json:"location"`
		StartDateUnixUTC int64  `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64  `json:"endDateUnixUTC"`
		// natural-language alternatives to the unix fields
		StartNatural string `json:"startNatural"`
		EndNatural   string `json:"endNatural"`

		RequiredAttendees []string               `json:"requiredAttendees"`
		OptionalAttendees []string               `json:"optionalAttendees"`
		Resources         []string               `json:"resources"`
		Recurrence        *recurrence.Recurrence `json:"recurrence"`

		LegacyFreeBusyStatus   string `json:"legacyFreeBusyStatus"`
		IntendedFreeBusyStatus string `json:"intendedFreeBusyStatus"`

		ReferenceItemID      string `json:"referenceItemId"`
		MessageDisposition   string `json:"messageDisposition"`
		ProposedStartUnixUTC int64  `json:"proposedStartUnixUTC"`
		ProposedEndUnixUTC   int64  `json:"proposedEndUnixUTC"`
	}

	type CreateItemReqBody struct {
		Items                  []OneNewItem `json:"items"`
		SendMeetingInvitations string       `json:"sendMeetingInvitations"`
		TargetFolder           string       `json:"targetFolder"`
	}

	// naturalDate falls back to the natural-language field when no unix
	// timestamp was given
	naturalDate := func(unix int64, natural string) (time.Time, bool) {
		if unix != 0 {
			return time.Unix(unix, 0).UTC(), true
		}
		if natural == "" {
			return time.Time{}, false
		}
		result, err := as.When.Parse(natural, time.Now().In(as.Config.GetLocation()))
		if err != nil || result == nil {
			return time.Time{}, false
		}
		return result.Time.UTC(), true
	}

	writeResults := func(w http.ResponseWriter, results []engine.ItemResult) {
		respBodyJson, err := json.Marshal(results)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Can't marshal response body"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(respBodyJson)
	}

	// create calendar items and meeting response objects
	muxer.HandleFunc("POST /items/create", MailboxMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			mailboxModel, ok := mailboxFromCtx(w, r)
			if !ok {
				return
			}

			var reqBody CreateItemReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if len(reqBody.Items) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide at least one item"))
				return
			}

			newItems := make([]engine.NewItem, 0, len(reqBody.Items))
			for _, one := range reqBody.Items {
				newItem := engine.NewItem{
					Class:                  engine.ItemClass(one.ItemClass),
					MailboxID:              mailboxModel.ID,
					Subject:                utils.CleanupString(one.Subject),
					Location:               one.Location,
					RequiredAttendees:      one.RequiredAttendees,
					OptionalAttendees:      one.OptionalAttendees,
					Resources:              one.Resources,
					Recurrence:             one.Recurrence,
					LegacyFreeBusyStatus:   one.LegacyFreeBusyStatus,
					IntendedFreeBusyStatus: one.IntendedFreeBusyStatus,
					ReferenceItemID:        one.ReferenceItemID,
					MessageDisposition:     one.MessageDisposition,
					Proposal:               mo.None[scheduling.Window](),
				}
				if start, ok := naturalDate(one.StartDateUnixUTC, one.StartNatural); ok {
					newItem.Start = start
				}
				if end, ok := naturalDate(one.EndDateUnixUTC, one.EndNatural); ok {
					newItem.End = end
				}
				if one.ProposedStartUnixUTC != 0 && one.ProposedEndUnixUTC != 0 {
					newItem.Proposal = mo.Some(scheduling.Window{
						Start: time.Unix(one.ProposedStartUnixUTC, 0).UTC(),
						End:   time.Unix(one.ProposedEndUnixUTC, 0).UTC(),
					})
				}
				newItems = append(newItems, newItem)
			}

			writeResults(w, eng.CreateItem(r.Context(), newItems,
				scheduling.Mode(reqBody.SendMeetingInvitations), reqBody.TargetFolder))
		}))

	type OneItemRef struct {
		Kind              string `json:"kind"`
		ItemID            string `json:"itemId"`
		RecurringMasterID string `json:"recurringMasterId"`
		InstanceIndex     int    `json:"instanceIndex"`
	}

	type GetItemReqBody struct {
		Refs []OneItemRef `json:"refs"`
	}

	parseRefs := func(oneRefs []OneItemRef) []engine.ItemRef {
		refs := make([]engine.ItemRef, 0, len(oneRefs))
		for _, one := range oneRefs {
			refs = append(refs, engine.ItemRef{
				Kind:              engine.RefKind(one.Kind),
				ItemID:            one.ItemID,
				RecurringMasterID: one.RecurringMasterID,
				InstanceIndex:     one.InstanceIndex,
			})
		}
		return refs
	}

	// resolve item, occurrence and recurring-master references
	muxer.HandleFunc("POST /items/get", MailboxMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			if _, ok := mailboxFromCtx(w, r); !ok {
				return
			}

			var reqBody GetItemReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if len(reqBody.Refs) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide at least one item reference"))
				return
			}

			writeResults(w, eng.GetItem(r.Context(), parseRefs(reqBody.Refs)))
		}))

	type OneChange struct {
		ItemID        string         `json:"itemId"`
		Target        string         `json:"target"`
		InstanceIndex int            `json:"instanceIndex"`
		Fields        map[string]any `json:"fields"`
	}

	type UpdateItemReqBody struct {
		Changes                               []OneChange `json:"changes"`
		SendMeetingInvitationsOrCancellations string      `json:"sendMeetingInvitationsOrCancellations"`
	}

	// apply change sets to items, series masters and single occurrences
	muxer.HandleFunc("POST /items/update", MailboxMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			if _, ok := mailboxFromCtx(w, r); !ok {
				return
			}

			var reqBody UpdateItemReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if len(reqBody.Changes) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide at least one change set"))
				return
			}

			changes := make([]engine.Change, 0, len(reqBody.Changes))
			for _, one := range reqBody.Changes {
				changes = append(changes, engine.Change{
					ItemID:        one.ItemID,
					Target:        engine.TargetKind(one.Target),
					InstanceIndex: one.InstanceIndex,
					Fields:        one.Fields,
				})
			}

			writeResults(w, eng.UpdateItem(r.Context(), changes,
				scheduling.Mode(reqBody.SendMeetingInvitationsOrCancellations)))
		}))

	type DeleteItemReqBody struct {
		Refs                     []OneItemRef `json:"refs"`
		SendMeetingCancellations string       `json:"sendMeetingCancellations"`
	}

	// delete items; occurrence refs become tombstones on the master
	muxer.HandleFunc("POST /items/delete", MailboxMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			if _, ok := mailboxFromCtx(w, r); !ok {
				return
			}

			var reqBody DeleteItemReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if len(reqBody.Refs) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide at least one item reference"))
				return
			}

			writeResults(w, eng.DeleteItem(r.Context(), parseRefs(reqBody.Refs),
				scheduling.Mode(reqBody.SendMeetingCancellations)))
		}))
}
