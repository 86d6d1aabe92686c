package server

import "time"

// HTTP server constants
const (
	// HTTP timeouts
	HTTPReadTimeout  = 15 * time.Second
	HTTPWriteTimeout = 15 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Shutdown timeout
	HTTPShutdownTimeout = 30 * time.Second

	// Search limits
	MaxQueryLimit     = 50
	DefaultQueryLimit = 10

	// Request bodies are small JSON documents of OCR lines.
	MaxRequestBytes = 1 << 20

	// Websocket scan stream
	WSReadLimit    = 1 << 20
	WSPongWait     = 60 * time.Second
	WSPingInterval = 50 * time.Second
	WSWriteWait    = 10 * time.Second

	SessionSweepInterval = time.Minute
)
