package events

import (
	"net/http"
	"time"
)

const (
	// keepalivePeriod is shorter than the admin server's write timeout
	keepalivePeriod = 15 * time.Second

	sendBufferSize = 64
)

// Subscriber is one connected event stream
type Subscriber struct {
	send        chan []byte
	connectedAt time.Time
}

// ServeSSE streams feed events to the client until it disconnects or the feed closes
func ServeSSE(w http.ResponseWriter, r *http.Request, feed *Feed) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := &Subscriber{
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
	}
	if !feed.subscribe(sub) {
		http.Error(w, "Event feed closed", http.StatusServiceUnavailable)
		return
	}
	defer feed.unsubscribe(sub)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("event: connected\ndata: {\"status\":\"connected\"}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(keepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-sub.send:
			if !ok {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
