package httpmiddleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// panicResponse mirrors the API error envelope.
type panicResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// startedWriter remembers whether the handler began its response.
type startedWriter struct {
	http.ResponseWriter
	started bool
}

func (s *startedWriter) WriteHeader(code int) {
	s.started = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *startedWriter) Write(b []byte) (int, error) {
	s.started = true
	return s.ResponseWriter.Write(b)
}

func (s *startedWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Recovery turns handler panics into a logged 500 carrying the request id.
// If the handler already started writing, only the log entry is produced.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
//
// Recovery runs outside InjectLogger, so it logs to lg directly.
func Recovery(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &startedWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				id := w.Header().Get(RequestIDHeader)
				reqID := zap.Skip()
				if id != "" {
					reqID = zap.String("request_id", id)
				}
				lg.Error("Handler panic",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					reqID,
					zap.Bool("response_started", sw.started),
					zap.Stack("stack"),
				)
				if sw.started {
					return
				}

				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(panicResponse{Error: "internal error", RequestID: id})
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
