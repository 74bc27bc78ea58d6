package models

// ErrorResponse is the JSON envelope written by every route on failure.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
