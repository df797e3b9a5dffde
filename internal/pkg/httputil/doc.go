// Package httputil provides shared HTTP response/request utilities for handlers.
//
// JSON endpoints use these helpers instead of writing raw
// http.ResponseWriter calls so that formatting, error envelopes, and
// logging stay consistent. Telemetry endpoints answer with Ack, which keeps
// failures in-band.
package httputil
