package http

import (
	"net/http"

	"github.com/initiumportal/stance/internal/portal/mediator"
	"github.com/initiumportal/stance/pkg/httpx"
)

// binder copies request data the body does not carry, such as path values,
// into the command.
type binder[C any] func(r *http.Request, cmd *C)

// endpoint serves a command handler: the JSON body and bind fill the
// command, and the result is written with status. StatusNoContent writes no
// body.
func endpoint[C, R any](h mediator.Handler[C, R], status int, bind binder[C]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, ok := decode(w, r, bind)
		if !ok {
			return
		}

		res, err := h.Handle(r.Context(), cmd)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond(w, status, res)
	}
}

func decode[C any](w http.ResponseWriter, r *http.Request, bind binder[C]) (C, bool) {
	var cmd C
	if err := httpx.DecodeJSON(r, &cmd); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return cmd, false
	}
	if bind != nil {
		bind(r, &cmd)
	}
	return cmd, true
}

func respond(w http.ResponseWriter, status int, v any) {
	if status == http.StatusNoContent || status == http.StatusAccepted {
		httpx.NoCache(w)
		w.WriteHeader(status)
		return
	}
	httpx.WriteJSON(w, status, v)
}
