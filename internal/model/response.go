package model

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// RetryAfter is set only on rate-limit responses.
type ErrorDetail struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// MessageResponse is the envelope for simple success acknowledgements.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AdminCheckResponse is returned by the admin-check endpoint. It never
// errors for anonymous callers; IsAdmin is simply false.
type AdminCheckResponse struct {
	IsAdmin bool   `json:"isAdmin"`
	Role    string `json:"role,omitempty"`
	AdminID string `json:"adminId,omitempty"`
}
