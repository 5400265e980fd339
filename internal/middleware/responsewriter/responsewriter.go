// Package responsewriter wraps an http.ResponseWriter to observe the
// response that was written through it.
package responsewriter

import (
	"net/http"
)

// StatusRecorder remembers the status code and body size of a response.
type StatusRecorder struct {
	http.ResponseWriter

	status  int
	written int64
}

// NewStatusRecorder wraps w. A response without an explicit WriteHeader
// call is reported as 200.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w}
}

func (r *StatusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)
	return n, err
}

// Status returns the status code sent to the client.
func (r *StatusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// BytesWritten returns the number of body bytes sent to the client.
func (r *StatusRecorder) BytesWritten() int64 {
	return r.written
}

// Unwrap lets http.ResponseController reach the wrapped writer.
func (r *StatusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
