// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package felicatest provides an in-memory card transport, a virtual
// Suica-family card and a scripted relay server for tests. No hardware or
// network access is involved.
package felicatest

import (
	"context"
	"sync"
	"time"

	"github.com/suicakit/go-felica/transport"
)

// Transport is a transport.Transport backed by a handler function. It logs
// every frame sent and can be made to fail after a fixed number of
// exchanges, simulating a card leaving the field mid-session.
type Transport struct {
	// Handler produces the card's raw response frame for a raw command
	// frame.
	Handler func(frame []byte) ([]byte, error)

	// FailAfter, when non-negative, makes every exchange past that count
	// return FailWith.
	FailAfter int

	// FailWith is the error returned once FailAfter is exceeded. Defaults to
	// transport.ErrRemoved.
	FailWith error

	mu        sync.Mutex
	exchanges [][]byte
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport wraps a handler; the transport never fails on its own.
func NewTransport(handler func([]byte) ([]byte, error)) *Transport {
	return &Transport{Handler: handler, FailAfter: -1}
}

// Exchange records the frame and delegates to the handler.
func (t *Transport) Exchange(ctx context.Context, frame []byte, _ time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrRemoved
	}
	n := len(t.exchanges)
	t.exchanges = append(t.exchanges, append([]byte(nil), frame...))
	t.mu.Unlock()

	if t.FailAfter >= 0 && n >= t.FailAfter {
		if t.FailWith != nil {
			return nil, t.FailWith
		}
		return nil, transport.ErrRemoved
	}
	return t.Handler(frame)
}

// Exchanges returns a copy of every frame sent so far.
func (t *Transport) Exchanges() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.exchanges...)
}

// Close marks the transport closed; further exchanges fail with ErrRemoved.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
