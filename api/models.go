package api

import (
	"github.com/jmcleod/sessionkeep/authtype"
	"github.com/jmcleod/sessionkeep/credstore"
	"github.com/jmcleod/sessionkeep/session"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ListAuthTypesResponse struct {
	AuthTypes []authtype.Info `json:"auth_types"`
}

// PutCredentialRequest carries a plaintext secret. It is encrypted before
// it reaches storage and never echoed back.
type PutCredentialRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type ListCredentialsResponse struct {
	Credentials []credstore.Ref `json:"credentials"`
}

type StatsResponse struct {
	session.Stats
}
