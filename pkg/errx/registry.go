package errx

import "fmt"

// Code is a registered error code. The public message is fixed at
// registration so handlers cannot leak ad-hoc internal detail to clients.
type Code struct {
	Code       string
	Type       Type
	HTTPStatus int
	Message    string
}

// Registry holds the error codes of one module under a common prefix.
type Registry struct {
	prefix string
}

// NewRegistry creates a registry whose codes are prefixed "PREFIX_".
func NewRegistry(prefix string) *Registry {
	return &Registry{prefix: prefix}
}

// Register declares a code. Intended for package-level var blocks.
func (r *Registry) Register(code string, t Type, httpStatus int, message string) *Code {
	return &Code{
		Code:       fmt.Sprintf("%s_%s", r.prefix, code),
		Type:       t,
		HTTPStatus: httpStatus,
		Message:    message,
	}
}

// New instantiates an error for a registered code.
func (r *Registry) New(c *Code) *Error {
	return &Error{
		Code:       c.Code,
		Message:    c.Message,
		Type:       c.Type,
		HTTPStatus: c.HTTPStatus,
	}
}

// NewWithCause instantiates an error for a registered code wrapping cause.
func (r *Registry) NewWithCause(c *Code, cause error) *Error {
	e := r.New(c)
	e.cause = cause
	return e
}
