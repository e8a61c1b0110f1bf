package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/credstore"
)

const maxSmallBodySize = 64 << 10

// ListAuthTypes returns the auth type registry.
func (a *API) ListAuthTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ListAuthTypesResponse{AuthTypes: authtype.All()})
}

// Stats returns the session manager counters.
func (a *API) Stats(w http.ResponseWriter, _ *http.Request) {
	if a.manager == nil {
		writeError(w, http.StatusNotFound, "stats not available")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: a.manager.Stats()})
}

// ListCredentials lists the credential refs stored for a principal and
// config. Secrets are never returned.
func (a *API) ListCredentials(w http.ResponseWriter, r *http.Request) {
	principalID, configID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	refs, err := a.vault.List(r.Context(), principalID)
	if err != nil {
		mapError(w, err)
		return
	}
	out := []credstore.Ref{}
	for _, ref := range refs {
		if ref.ConfigID == configID {
			out = append(out, ref)
		}
	}
	writeJSON(w, http.StatusOK, ListCredentialsResponse{Credentials: out})
}

// PutCredential encrypts and stores a credential, replacing any previous one.
func (a *API) PutCredential(w http.ResponseWriter, r *http.Request) {
	ref, ok := credentialRef(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSmallBodySize)
	var req PutCredentialRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, "secret is required")
		return
	}

	if err := a.vault.Save(r.Context(), ref, req.Name, req.Secret); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditCredentialSaved, r,
		slog.Int64("principal_id", ref.PrincipalID),
		slog.Int64("config_id", ref.ConfigID),
		slog.String("kind", string(ref.Kind)))
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredential removes a stored credential.
func (a *API) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	ref, ok := credentialRef(w, r)
	if !ok {
		return
	}
	if err := a.vault.Remove(r.Context(), ref); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditCredentialRemoved, r,
		slog.Int64("principal_id", ref.PrincipalID),
		slog.Int64("config_id", ref.ConfigID),
		slog.String("kind", string(ref.Kind)))
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateToken drops the cached session token for an auth type so the
// next request signs in again.
func (a *API) InvalidateToken(w http.ResponseWriter, r *http.Request) {
	principalID, configID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	authType, err := authtype.Parse(chi.URLParam(r, "authType"))
	if err != nil {
		mapError(w, err)
		return
	}
	store, err := a.factory.Resolve(authType)
	if err != nil {
		mapError(w, err)
		return
	}
	store.Invalidate(r.Context(), principalID, configID, authType)

	a.audit.log(AuditTokenInvalidated, r,
		slog.Int64("principal_id", principalID),
		slog.Int64("config_id", configID),
		slog.String("auth_type", authType.String()))
	w.WriteHeader(http.StatusNoContent)
}

func credentialRef(w http.ResponseWriter, r *http.Request) (credstore.Ref, bool) {
	principalID, configID, ok := pathIDs(w, r)
	if !ok {
		return credstore.Ref{}, false
	}
	kind, err := credstore.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		mapError(w, err)
		return credstore.Ref{}, false
	}
	return credstore.Ref{PrincipalID: principalID, ConfigID: configID, Kind: kind}, true
}

func pathIDs(w http.ResponseWriter, r *http.Request) (principalID, configID int64, ok bool) {
	principalID, err := strconv.ParseInt(chi.URLParam(r, "principalID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid principal id")
		return 0, 0, false
	}
	configID, err = strconv.ParseInt(chi.URLParam(r, "configID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid config id")
		return 0, 0, false
	}
	return principalID, configID, true
}
