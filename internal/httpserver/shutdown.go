package httpserver

import (
	"context"
	"time"
)

// ShutdownTimeout bounds how long in-flight requests get to finish.
var ShutdownTimeout = 10 * time.Second

// Drain stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests. It is detached from any canceled parent context.
func (s *Server) Drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}
