package errx

import "errors"

// HTTPResponse is the wire shape every handler returns on failure.
type HTTPResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

// ToHTTP converts any error into a status code and response body. Non-errx
// errors are masked as internal so raw collaborator failures never reach
// clients.
func ToHTTP(err error) (int, HTTPResponse) {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus, HTTPResponse{
			Code:    e.Code,
			Message: e.Message,
			Type:    string(e.Type),
			Details: e.Details,
		}
	}
	internal := Internal("Internal server error")
	return internal.HTTPStatus, HTTPResponse{
		Code:    internal.Code,
		Message: internal.Message,
		Type:    string(internal.Type),
	}
}
