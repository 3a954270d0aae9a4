// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package felica reads Suica-family FeliCa transit cards through a remote
// authentication relay.
//
// A Session drives the mutual-authentication handshake between the card (via
// a transport.Transport) and the relay server, then performs authenticated
// block reads. A Reader orchestrates one complete card snapshot on top of a
// session. Each physical card presentation is one session; a failed session
// is terminal and a new one must be started to retry.
package felica

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/suicakit/go-felica/record"
)

// SystemCode is the FeliCa system code of the Suica card family.
const SystemCode uint16 = 0x0003

// DefaultAreaNodes are the area node IDs covered by mutual authentication.
var DefaultAreaNodes = []uint16{0x0000, 0x0040, 0x0800, 0x0FC0, 0x1000}

// DefaultServiceNodes are the encrypted service node IDs covered by mutual
// authentication, in service index order (index 0 is the first entry).
var DefaultServiceNodes = []uint16{
	0x0048, 0x0088, 0x0810, 0x08C8, 0x090C,
	0x1008, 0x1048, 0x108C, 0x10C8,
}

// CardIdentity is the identity captured for one card presentation: the
// manufacturer identifier and parameters read from polling, plus the issue
// identity returned by the server once mutual authentication completes.
// Immutable after capture.
type CardIdentity struct {
	IDm [8]byte
	PMm [8]byte

	IDi record.IDi
	PMi string
}

// IDmString returns the manufacturer ID in its usual upper-case hex form.
func (id CardIdentity) IDmString() string {
	return strings.ToUpper(hex.EncodeToString(id.IDm[:]))
}

// PMmString returns the manufacturer parameters in upper-case hex.
func (id CardIdentity) PMmString() string {
	return strings.ToUpper(hex.EncodeToString(id.PMm[:]))
}

// MarshalJSON renders all four identifiers in their printable forms.
func (id CardIdentity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IDm string `json:"idm"`
		PMm string `json:"pmm"`
		IDi string `json:"idi,omitempty"`
		PMi string `json:"pmi,omitempty"`
	}{
		IDm: id.IDmString(),
		PMm: id.PMmString(),
		IDi: idiString(id.IDi),
		PMi: id.PMi,
	})
}

func idiString(idi record.IDi) string {
	if idi == (record.IDi{}) {
		return ""
	}
	return idi.String()
}
