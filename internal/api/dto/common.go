package dto

// ErrorResponse is written for requests rejected before reaching the
// accounts service. It shares the shape of accounts.Result.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Validator is implemented by request bodies with required fields.
type Validator interface {
	Validate() map[string]string
}
