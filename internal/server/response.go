package server

import "net/http"

// Response is a JSON response. A nil Body writes no body.
type Response struct {
	Status int
	Body   any
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status   int    `json:"-"`
	ErrorMsg string `json:"error_msg"`
}

func NewErrorResponse(status int, msg string) *ErrorResponse {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ErrorResponse{Status: status, ErrorMsg: msg}
}

func (e *ErrorResponse) AsResponse() Response {
	return Response{
		Status: e.Status,
		Body:   e,
	}
}
