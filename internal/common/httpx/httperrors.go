package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/workdeck/workdeck/internal/common/apperrors"
)

// Error is the wire form of an HTTP error.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
}

// Failure is the result code carried by error responses.
const Failure int = 0

// Send writes the error envelope to w. A nil writer is a no-op.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rsp := &errorRsp{
		Result: Failure,
		Error:  e.Description,
	}
	rspJson, err := json.Marshal(rsp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("unable to encode error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(rspJson)
}

// Error returns the error description.
func (e *Error) Error() string {
	return e.Description
}

// SendError sends an application error as an HTTP error response.
func SendError(w http.ResponseWriter, err apperrors.Error) {
	if err == nil {
		return
	}
	statusCode := err.StatusCode()
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	httperror := &Error{
		StatusCode:  statusCode,
		Description: err.ErrorAll(),
	}
	httperror.Send(w)
}

// ErrApplicationError returns a generic internal error, optionally with
// additional detail appended.
func ErrApplicationError(msg ...string) *Error {
	description := "unable to process request"
	if len(msg) > 0 {
		description = fmt.Sprintf("%s: %s", description, msg[0])
	}
	return &Error{
		Description: description,
		StatusCode:  http.StatusInternalServerError,
	}
}

// ErrReqMethodNotSupported returns an error for unsupported methods.
func ErrReqMethodNotSupported() *Error {
	return &Error{
		Description: "request method not supported",
		StatusCode:  http.StatusMethodNotAllowed,
	}
}

// ErrUnableToParseReqData returns an error for malformed request bodies.
func ErrUnableToParseReqData() *Error {
	return &Error{
		Description: "unable to parse request data",
		StatusCode:  http.StatusBadRequest,
	}
}

// ErrRequestTimeout returns an error for requests that exceeded their
// processing deadline.
func ErrRequestTimeout() *Error {
	return &Error{
		Description: "request timed out",
		StatusCode:  http.StatusRequestTimeout,
	}
}

// ErrInvalidRequest returns a 400 error with the given detail.
func ErrInvalidRequest(msg string) *Error {
	return &Error{
		Description: msg,
		StatusCode:  http.StatusBadRequest,
	}
}
