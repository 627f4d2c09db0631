// SPDX-License-Identifier: MIT
// Package transport publishes live analysis results to external
// consumers. The monitor only depends on the Transport interface;
// implementations decide the wire.
package transport

import (
	applog "lfnmon/internal/log"
)

// Transport defines an interface for sending live analysis updates.
// Implementations should be thread-safe and handle rate limiting.
type Transport interface {
	Send(data any) error
	Close() error
}

// LoggingTransport writes updates to the application log. It serves as
// the fallback when no network transport is configured.
type LoggingTransport struct{}

// Send implements Transport.
func (LoggingTransport) Send(data any) error {
	applog.Debugf("transport: %+v", data)
	return nil
}

// Close implements Transport.
func (LoggingTransport) Close() error {
	return nil
}

// Multi fans one update out to several transports. Send errors are logged
// and swallowed so one slow consumer cannot stall the others.
type Multi []Transport

// Send implements Transport.
func (m Multi) Send(data any) error {
	for _, t := range m {
		if err := t.Send(data); err != nil {
			applog.Warnf("transport send failed: %v", err)
		}
	}
	return nil
}

// Close implements Transport, closing every member and returning the
// first error.
func (m Multi) Close() error {
	var first error
	for _, t := range m {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
