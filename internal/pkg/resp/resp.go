/*
Package resp provides helper functions for constructing and sending JSON responses
in the shape the chat backend uses.

Successful responses carry the resource itself as the body; error responses carry a
{"message": "..."} object that the API client surfaces to the user.
*/
package resp

import (
	"net/http"

	"github.com/goccy/go-json"

	"chatsync/internal/pkg/logx"
)

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	// Message is the client-friendly error description.
	Message string `json:"message"`
}

// RespondJSON sets the Content-Type and writes payload with httpStatus.
func RespondJSON(w http.ResponseWriter, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess writes data with HTTP 200.
func RespondSuccess(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusOK, data)
}

// RespondCreated writes data with HTTP 201.
func RespondCreated(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusCreated, data)
}

// RespondError writes an error body with httpStatus.
func RespondError(w http.ResponseWriter, httpStatus int, message string) {
	RespondJSON(w, httpStatus, ErrorBody{Message: message})
}
