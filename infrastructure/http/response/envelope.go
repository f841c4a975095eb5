package response

import (
	"encoding/json"
	"net/http"

	"github.com/spacedesk/spacedesk/domain/apperr"
)

// Envelope is the uniform response wrapper of the API
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Error   interface{} `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(envelope)
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, Envelope{Status: true, Message: message, Data: data})
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, Envelope{Status: false, Message: message})
}

// FromError maps a domain error to its HTTP status and writes the envelope.
// AppError rejections go out whole so callers see the violated invariant and
// the current figures; anything else is masked as an internal error.
func FromError(w http.ResponseWriter, err error) {
	statusCode := apperr.GetHTTPStatusCode(err)
	var payload interface{}
	message := "Internal server error"
	if appErr, ok := asAppError(err); ok {
		payload = appErr
		message = appErr.Message
	}
	WriteJSON(w, statusCode, Envelope{Status: false, Message: message, Error: payload})
}

func asAppError(err error) (*apperr.AppError, bool) {
	for err != nil {
		if appErr, ok := err.(*apperr.AppError); ok {
			return appErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, message)
}

func UnprocessableEntity(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}
