package httptransport

import (
	"encoding/json"
	"net/http"

	"idserver/internal/oauth"
	"idserver/internal/registration"
)

// RegistrationHandler is the dynamic client registration endpoint.
type RegistrationHandler struct {
	service *registration.Service
}

func NewRegistrationHandler(service *registration.Service) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// clientMetadata is the RFC 7591 request shape; the response echoes it with
// the issued credentials attached.
type clientMetadata struct {
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

type clientRegistrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	clientMetadata
}

func (h *RegistrationHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var metadata clientMetadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		writeError(w, oauth.NewError(oauth.ErrInvalidClientMetadata, "malformed registration body"))
		return
	}

	client, err := h.service.Register(r.Context(), &registration.Request{
		ClientName:              metadata.ClientName,
		RedirectURIs:            metadata.RedirectURIs,
		GrantTypes:              metadata.GrantTypes,
		ResponseTypes:           metadata.ResponseTypes,
		Scope:                   metadata.Scope,
		TokenEndpointAuthMethod: metadata.TokenEndpointAuthMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	grants := make([]string, 0, len(client.GrantTypes))
	for _, gt := range client.GrantTypes {
		grants = append(grants, string(gt))
	}
	responseTypes := make([]string, 0, len(client.ResponseTypes))
	for _, rt := range client.ResponseTypes {
		responseTypes = append(responseTypes, string(rt))
	}

	writeJSON(w, http.StatusCreated, clientRegistrationResponse{
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		clientMetadata: clientMetadata{
			ClientName:              metadata.ClientName,
			RedirectURIs:            client.RedirectURIs,
			GrantTypes:              grants,
			ResponseTypes:           responseTypes,
			Scope:                   oauth.JoinScopes(client.AllowedScopes),
			TokenEndpointAuthMethod: string(client.TokenEndpointAuth),
		},
	})
}
