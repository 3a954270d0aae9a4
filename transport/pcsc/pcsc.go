// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package pcsc exchanges FeliCa frames through a PC/SC reader.
//
// NFC readers with a PN53x-family frontend (ACR122U, PaSoRi in CCID mode)
// tunnel raw FeliCa frames inside a vendor pseudo-APDU wrapping the PN532
// InCommunicateThru command. That wrapping is the only APDU this module ever
// builds.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"

	"github.com/suicakit/go-felica/transport"
)

const (
	pn532HostToPn  = 0xD4
	pn532PnToHost  = 0xD5
	pn532CommThru  = 0x42
	pn532CommReply = 0x43
)

// Readers lists the PC/SC readers available on this host.
func Readers() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PC/SC: %w", err)
	}

	readers, err := ctx.ListReaders()

	if rerr := ctx.Release(); rerr != nil {
		return nil, fmt.Errorf("failed to release context: %w", rerr)
	}

	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	return readers, err
}

// Reader is an open connection to one PC/SC reader. It implements
// transport.Transport.
type Reader struct {
	ctx  *scard.Context
	card *scard.Card
	name string
}

var _ transport.Transport = (*Reader)(nil)

// Open connects to the named reader, or to the first available reader when
// name is empty.
func Open(name string) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PC/SC: %w", err)
	}

	if name == "" {
		readers, err := ctx.ListReaders()
		if err != nil || len(readers) == 0 {
			_ = ctx.Release()
			if err == nil || errors.Is(err, scard.ErrNoReadersAvailable) {
				err = errors.New("no PC/SC readers available")
			}
			return nil, err
		}
		name = readers[0]
	}

	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		_ = ctx.Release()
		if errors.Is(err, scard.ErrNoSmartcard) {
			return nil, transport.ErrNoCard
		}
		return nil, fmt.Errorf("failed to connect to reader %q: %w", name, err)
	}

	return &Reader{ctx: ctx, card: card, name: name}, nil
}

// Name returns the PC/SC reader name this connection is bound to.
func (r *Reader) Name() string { return r.name }

// Exchange tunnels one FeliCa frame through the reader. The PC/SC layer has
// no per-transmit timeout knob; the reader firmware bounds the card exchange
// and the timeout argument is advisory here. The context is checked before
// and after the blocking transmit.
func (r *Reader) Exchange(ctx context.Context, frame []byte, _ time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pseudo-APDU: CLA=FF INS=00 wrapping InCommunicateThru.
	req := make([]byte, 0, 7+len(frame))
	req = append(req, 0xFF, 0x00, 0x00, 0x00, byte(2+len(frame)))
	req = append(req, pn532HostToPn, pn532CommThru)
	req = append(req, frame...)

	resp, err := r.card.Transmit(req)
	if err != nil {
		return nil, mapSCardError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: short response (%dB)", transport.ErrIO, len(resp))
	}
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, fmt.Errorf("%w: reader status %02X%02X", transport.ErrIO, sw1, sw2)
	}

	body := resp[:len(resp)-2]
	if len(body) < 3 || body[0] != pn532PnToHost || body[1] != pn532CommReply {
		return nil, fmt.Errorf("%w: unexpected frontend reply", transport.ErrIO)
	}
	if status := body[2]; status != 0x00 {
		// PN532 status 0x01 is a card timeout: nothing answered.
		if status == 0x01 {
			return nil, transport.ErrNoCard
		}
		return nil, fmt.Errorf("%w: frontend status 0x%02X", transport.ErrIO, status)
	}

	return body[3:], nil
}

// Close disconnects from the reader and releases the PC/SC context.
func (r *Reader) Close() error {
	err := r.card.Disconnect(scard.LeaveCard)
	if rerr := r.ctx.Release(); err == nil {
		err = rerr
	}
	return err
}

func mapSCardError(err error) error {
	switch {
	case errors.Is(err, scard.ErrNoSmartcard):
		return transport.ErrNoCard
	case errors.Is(err, scard.ErrRemovedCard), errors.Is(err, scard.ErrResetCard):
		return transport.ErrRemoved
	default:
		return fmt.Errorf("%w: %v", transport.ErrIO, err)
	}
}
