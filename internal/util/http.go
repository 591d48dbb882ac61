package util

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// StatusCapturingResponseWriter wraps http.ResponseWriter to record the
// status code and number of bytes written to the response.
type StatusCapturingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

// NewStatusCapturingResponseWriter creates a wrapper around w.
func NewStatusCapturingResponseWriter(w http.ResponseWriter) *StatusCapturingResponseWriter {
	return &StatusCapturingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader records the status code and forwards it.
func (w *StatusCapturingResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// Write forwards the body bytes and records the count.
func (w *StatusCapturingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// StatusCode returns the recorded status code.
func (w *StatusCapturingResponseWriter) StatusCode() int {
	return w.statusCode
}

// BytesWritten returns the number of body bytes written.
func (w *StatusCapturingResponseWriter) BytesWritten() int64 {
	return w.written
}

// Hijack implements http.Hijacker when the underlying writer supports it.
// Required for WebSocket upgrades through the middleware chain.
func (w *StatusCapturingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

// Flush implements http.Flusher when the underlying writer supports it.
func (w *StatusCapturingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}
