// Package timeouts defines shared timeout constants so durations do not
// drift between the gateway and the client commands.
package timeouts

import "time"

// ReadHeader limits how long the gateway waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the gateway waits for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// RESTRequest caps one request/response call against the gateway REST
// surface.
const RESTRequest = 5 * time.Second
