package httptransport

import (
	"encoding/json"
	"html/template"
	"net/http"

	"idserver/internal/authorize"
	"idserver/internal/oauth"
	dErrors "idserver/pkg/domain-errors"
)

// formPostTemplate is the OAuth form_post response mode page: an auto
// submitting form carrying the response parameters to the redirect URI.
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit This Form</title></head>
<body onload="javascript:document.forms[0].submit()">
<form method="post" action="{{.URI}}">
{{- range $name, $values := .Params}}{{range $values}}
<input type="hidden" name="{{$name}}" value="{{.}}"/>
{{- end}}{{end}}
</form>
</body>
</html>`))

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// protocolErrorBody is the RFC 6749 error shape.
type protocolErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	State            string `json:"state,omitempty"`
}

// writeError maps any pipeline error onto the wire: protocol errors keep
// their OAuth code, domain errors map through their HTTP status, anything
// else is a 500 server_error.
func writeError(w http.ResponseWriter, err error) {
	if protocol, ok := oauth.AsProtocolError(err); ok {
		status := http.StatusBadRequest
		if protocol.Code == oauth.ErrInvalidClient {
			w.Header().Set("WWW-Authenticate", `Basic realm="idserver"`)
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, protocolErrorBody{
			Error:            string(protocol.Code),
			ErrorDescription: protocol.Description,
			State:            protocol.State,
		})
		return
	}

	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	body := protocolErrorBody{Error: "server_error"}
	if status < http.StatusInternalServerError {
		body.ErrorDescription = err.Error()
		body.Error = "invalid_request"
	}
	writeJSON(w, status, body)
}

// deliver sends an assembled authorization response to the browser using the
// redirect's response mode.
func deliver(w http.ResponseWriter, r *http.Request, redirect *authorize.Redirect) {
	switch redirect.Mode {
	case oauth.ResponseModeFormPost:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = formPostTemplate.Execute(w, redirect)
	default:
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, redirect.Location(), http.StatusFound)
	}
}
