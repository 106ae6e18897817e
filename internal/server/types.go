// Package server provides the HTTP server for the upload broker.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// PresignedURLResponse is the grant descriptor returned by GET /presigned-url.
type PresignedURLResponse struct {
	// URL is the storage endpoint the client POSTs the form to.
	URL string `json:"url"`
	// Fields are the form fields the client must send with the file.
	Fields map[string]string `json:"fields"`
	// Location identifies the grant; the client echoes it to /callback.
	Location string `json:"location"`
}

// CallbackRequest is the HTTP request body for POST /callback.
type CallbackRequest struct {
	// URL is the grant identifier returned as location.
	URL string `json:"url" validate:"required"`
}

// DeleteFilesRequest is the HTTP request body for DELETE /delete-files.
type DeleteFilesRequest struct {
	FileKeys []string `json:"fileKeys" validate:"required,min=1,dive,required"`
}

// UploadResponse is the HTTP response after a direct upload.
type UploadResponse struct {
	Message   string   `json:"message"`
	Locations []string `json:"locations"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
