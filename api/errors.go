package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/credstore"
	"github.com/jmcleod/sessionkeep/secret"
	"github.com/jmcleod/sessionkeep/tokenstore"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	var encErr *secret.EncryptionError
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, credstore.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authtype.ErrUnknown):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tokenstore.ErrNoSharedStore):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &encErr):
		writeError(w, http.StatusInternalServerError, "encrypting credential failed")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
