package httpserver

import "time"

// ShutdownTimeout controls how long to wait for in-flight pages and uploads
// to finish during a graceful shutdown.
var ShutdownTimeout = 30 * time.Second
