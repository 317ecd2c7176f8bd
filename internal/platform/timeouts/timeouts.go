// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long a server waits for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// AuditFlush bounds how long the audit recorder may spend persisting queued
// records after its run context ends.
const AuditFlush = 3 * time.Second

// WebSocketIdle closes a calculator socket that sends no frame for this long.
const WebSocketIdle = 2 * time.Minute
