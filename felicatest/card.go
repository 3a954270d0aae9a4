// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felicatest

import (
	"fmt"

	"github.com/suicakit/go-felica/frame"
	"github.com/suicakit/go-felica/transport"
)

// Card is a virtual Suica-family card. It answers polling with its identity
// and echoes every other command back with the matching response code, which
// is all the scripted relay server needs.
type Card struct {
	IDm [8]byte
	PMm [8]byte

	// SystemCode is the system the card belongs to. Polling for another
	// system goes unanswered, as on real hardware.
	SystemCode uint16
}

// NewCard builds a virtual card with a fixed identity on the Suica system.
func NewCard() *Card {
	return &Card{
		IDm:        [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		PMm:        [8]byte{0x00, 0xF1, 0x00, 0x00, 0x00, 0x01, 0x43, 0x00},
		SystemCode: 0x0003,
	}
}

// Transport returns a transport backed by this card.
func (c *Card) Transport() *Transport {
	return NewTransport(c.handle)
}

func (c *Card) handle(raw []byte) ([]byte, error) {
	code, payload, err := frame.DecodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrIO, err)
	}

	if code == frame.CmdPolling {
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: short polling command", transport.ErrIO)
		}
		system := uint16(payload[0])<<8 | uint16(payload[1])
		if system != c.SystemCode && system != 0xFFFF {
			return nil, transport.ErrNoCard
		}
		body := append(append([]byte{}, c.IDm[:]...), c.PMm[:]...)
		return frame.EncodeCommand(frame.RespPolling, body)
	}

	// Any other command: respond with code+1, IDm, and the payload echoed.
	// The scripted relay decides what the bytes mean.
	body := append(append([]byte{}, c.IDm[:]...), payload...)
	return frame.EncodeCommand(code+1, body)
}
