package route

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/utils"
)

type MailboxCtxKeyType string

const (
	MailboxCtxKey   MailboxCtxKeyType = "mailbox"
	MailboxIDHeader string            = "X-Mailbox-Id"
)

// MailboxMiddleware resolves the calling mailbox from the request header
// and plants its model on the context. Every item route runs behind it.
func MailboxMiddleware(as *utils.AppState, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		mailboxID := strings.TrimSpace(r.Header.Get(MailboxIDHeader))
		if mailboxID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Mailbox header not found"))
			return
		}

		startTimer := time.Now()
		mailboxModel := new(model.Mailbox)
		if err := as.BunDB.
			NewSelect().
			Model(mailboxModel).
			Where("id = ?", mailboxID).
			Scan(r.Context()); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Mailbox not found"))
			slog.Debug("can't find mailbox in DB", "mailbox", mailboxID, "error", err)
			return
		}
		utils.Record(as.MetricChans.DatabaseRead, float64(time.Since(startTimer).Microseconds()))

		ctx := context.WithValue(r.Context(), MailboxCtxKey, mailboxModel)
		next(w, r.WithContext(ctx))
	}
}

func mailboxFromCtx(w http.ResponseWriter, r *http.Request) (*model.Mailbox, bool) {
	mailboxModel, ok := r.Context().Value(MailboxCtxKey).(*model.Mailbox)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Can't get mailbox from middleware"))
		return nil, false
	}
	return mailboxModel, true
}
