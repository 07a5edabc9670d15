package route

import (
	"encoding/json"
	"net/http"
	"time"

	"groupcal/src-server/model"
	"groupcal/src-server/utils"
)

func Mailbox(muxer *http.ServeMux, as *utils.AppState) {
	type CreateMailboxReqBody struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}

	// register a mailbox; the ID is its SMTP address
	muxer.HandleFunc("POST /mailbox/create", func(w http.ResponseWriter, r *http.Request) {
		var reqBody CreateMailboxReqBody
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Invalid request body"))
			return
		}

		mailboxModel := model.Mailbox{
			ID:          reqBody.ID,
			DisplayName: utils.CleanupString(reqBody.DisplayName),
			CreatedAt:   time.Now().UTC().Unix(),
		}
		startTimer := time.Now()
		if err := mailboxModel.Upsert(r.Context(), as.BunDB); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}
		utils.Record(as.MetricChans.DatabaseWrite, float64(time.Since(startTimer).Microseconds()))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(mailboxModel.ID))
	})

	type AddDelegateReqBody struct {
		DelegateID   string `json:"delegateId"`
		ReceivesCopy bool   `json:"receivesCopy"`
	}

	// grant another mailbox delegate access on the calling mailbox
	muxer.HandleFunc("POST /mailbox/delegates", MailboxMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			mailboxModel, ok := mailboxFromCtx(w, r)
			if !ok {
				return
			}

			var reqBody AddDelegateReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			delegateModel := model.Delegate{
				PrincipalID:  mailboxModel.ID,
				DelegateID:   reqBody.DelegateID,
				ReceivesCopy: reqBody.ReceivesCopy,
				CreatedAt:    time.Now().UTC().Unix(),
			}
			if err := delegateModel.Upsert(r.Context(), as.BunDB); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(err.Error()))
				return
			}

			w.WriteHeader(http.StatusOK)
		}))

	type OneDelegateRespBody struct {
		DelegateID   string `json:"delegateId"`
		ReceivesCopy bool   `json:"receivesCopy"`
	}

	// list the calling mailbox's delegates
	muxer.HandleFunc("GET /mailbox/delegates", MailboxMiddleware(as,
		func(w http.ResponseWriter, r *http.Request) {
			mailboxModel, ok := mailboxFromCtx(w, r)
			if !ok {
				return
			}

			delegateModels := make([]model.Delegate, 0)
			if err := as.BunDB.
				NewSelect().
				Model(&delegateModels).
				Where("principal_id = ?", mailboxModel.ID).
				Scan(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get delegates"))
				return
			}

			respBody := make([]OneDelegateRespBody, 0, len(delegateModels))
			for _, delegateModel := range delegateModels {
				respBody = append(respBody, OneDelegateRespBody{
					DelegateID:   delegateModel.DelegateID,
					ReceivesCopy: delegateModel.ReceivesCopy,
				})
			}
			respBodyJson, err := json.Marshal(respBody)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		}))
}
