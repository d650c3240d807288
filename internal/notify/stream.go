package notify

import (
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"
)

// ServeHTTP streams events to one client as server-sent signal patches until
// the client disconnects or the broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	events, cancel := b.Subscribe()
	defer cancel()

	// the server's WriteTimeout would otherwise cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sse := datastar.NewSSE(w, r)
	b.logger.Debug("push subscriber connected", zap.String("remote", r.RemoteAddr))

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(ev); err != nil {
				b.logger.Debug("push subscriber write failed", zap.Error(err))
				return
			}
		}
	}
}
