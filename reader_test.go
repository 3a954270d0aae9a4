// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felica

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suicakit/go-felica/felicatest"
	"github.com/suicakit/go-felica/record"
)

// cardImage holds the plaintext service contents of a virtual card, keyed by
// service index as authenticated.
type cardImage map[int][]byte

func (img cardImage) blocks(serviceIndex, block int) [16]byte {
	var out [16]byte
	data := img[serviceIndex]
	if off := block * 16; off+16 <= len(data) {
		copy(out[:], data[off:off+16])
	}
	return out
}

func testImage(t *testing.T) cardImage {
	t.Helper()

	fromHex := func(s string) []byte {
		b, err := hex.DecodeString(s)
		require.NoError(t, err)
		return b
	}

	issuance := make([]byte, 64)
	copy(issuance[0:16], "SUICA TARO      ")
	copy(issuance[16:24], fromHex("09012345678fffff"))
	issuance[24] = 0x25
	copy(issuance[25:27], fromHex("b4af"))
	copy(issuance[28:30], fromHex("f401"))
	copy(issuance[32:40], fromHex("0011223344556677"))
	copy(issuance[48:50], fromHex("0102"))
	issuance[50] = 0x15
	issuance[51], issuance[52] = 0x25, 0x09
	copy(issuance[55:57], fromHex("302a"))
	copy(issuance[62:64], fromHex("442a"))

	attributes := make([]byte, 16)
	attributes[8] = 0x24
	copy(attributes[11:13], fromHex("8813"))
	copy(attributes[14:16], fromHex("0105"))

	issuance2 := make([]byte, 16)
	copy(issuance2[0:2], fromHex("8813"))
	copy(issuance2[8:10], fromHex("3119"))
	copy(issuance2[14:16], fromHex("0105"))

	topup := make([]byte, 48)
	topup[0] = 0x07
	topup[1], topup[2] = 0x25, 0x09
	copy(topup[5:7], fromHex("1027"))

	// Two used history slots, the rest of the ring empty.
	history := make([]byte, 20*16)
	copy(history[0:16], fromHex("16010002311925092510d20400002a00"))
	copy(history[16:32], fromHex("16460002311973ca0000d20400002900"))

	uncharted := make([]byte, 10*16)
	for i := range uncharted {
		uncharted[i] = byte(i)
	}

	commuter := make([]byte, 48)
	copy(commuter[0:2], fromHex("302a"))
	copy(commuter[2:4], fromHex("442a"))
	commuter[8], commuter[9] = 0x25, 0x09
	commuter[10], commuter[11] = 0x25, 0x10
	copy(commuter[37:39], fromHex("302a"))

	gate := make([]byte, 3*16)
	for i := 0; i < 3; i++ {
		b := gate[i*16:]
		b[0] = 0xA0
		b[2], b[3] = 0x25, byte(0x09+i)
		copy(b[6:8], fromHex("3119"))
		b[8], b[9] = 0x09, 0x45
	}

	sfGate := make([]byte, 32)
	sfGate[0], sfGate[1] = 0x25, 0x09
	copy(sfGate[16:18], fromHex("3119"))
	sfGate[18], sfGate[19] = 0x08, 0x30
	sfGate[20], sfGate[21] = 0x30, 0x01
	sfGate[23], sfGate[24] = 0x09, 0x15
	sfGate[25], sfGate[26] = 0x30, 0x02

	return cardImage{
		0: issuance,
		1: attributes,
		2: issuance2,
		3: topup,
		4: history,
		5: uncharted,
		6: commuter,
		7: gate,
		8: sfGate,
	}
}

func TestCollect(t *testing.T) {
	srv := felicatest.NewRelayServer()
	defer srv.Close()
	srv.Blocks = testImage(t).blocks

	s, _ := newTestSession(t, felicatest.NewCard(), srv)

	snap, err := NewReader(s).Collect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Empty(t, snap.Errors)
	assert.Empty(t, snap.Aborted)

	require.NotNil(t, snap.Issuance)
	assert.Equal(t, "SUICA TARO", snap.Issuance.OwnerName)
	assert.Equal(t, uint16(500), snap.Issuance.Deposit)

	require.NotNil(t, snap.Attributes)
	assert.Equal(t, uint16(5000), snap.Attributes.Balance)

	require.NotNil(t, snap.Issuance2)
	require.NotNil(t, snap.LastTopup)
	assert.Equal(t, uint16(10000), snap.LastTopup.Amount)

	// The history ring stops at the first empty slot.
	require.Len(t, snap.History, 2)
	assert.Equal(t, record.Date{Year: 24, Month: 8, Day: 25}, snap.History[0].Date)
	assert.Equal(t, uint16(1234), snap.History[0].Balance)

	require.NotNil(t, snap.CommuterPass)
	assert.Len(t, snap.GateLog, 3)
	require.NotNil(t, snap.SFGateLog)

	// The uncharted service is preserved block by block.
	require.Len(t, snap.Unknown, 10)
	assert.Equal(t, record.SvcUncharted, snap.Unknown[0].Service)
	assert.Equal(t, byte(0x10), snap.Unknown[1].Raw[0])

	// 2 history + 3 gate + 10 unknown + 6 single-record sections.
	assert.Equal(t, 21, snap.RecordCount())
	assert.NotEmpty(t, snap.StationRefs())
}

func TestCollectPartialOnCardRemoval(t *testing.T) {
	srv := felicatest.NewRelayServer()
	defer srv.Close()
	srv.Blocks = testImage(t).blocks

	s, tr := newTestSession(t, felicatest.NewCard(), srv)

	// Polling, two handshake passes and two section reads succeed; the card
	// leaves the field on the third section.
	tr.FailAfter = 5

	snap, err := NewReader(s).Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, ReasonSessionLost, ReasonOf(err))

	// Everything decoded before the removal is kept.
	require.NotNil(t, snap)
	assert.Equal(t, "session lost", snap.Aborted)
	require.NotNil(t, snap.Issuance)
	assert.Equal(t, "SUICA TARO", snap.Issuance.OwnerName)
	require.NotNil(t, snap.Attributes)
	assert.Equal(t, 2, snap.RecordCount())
	assert.Nil(t, snap.History)
}

func TestCollectSectionRefused(t *testing.T) {
	srv := felicatest.NewRelayServer()
	defer srv.Close()
	srv.Blocks = testImage(t).blocks
	srv.RefuseService = map[int]uint16{2: 0x01A6}

	s, _ := newTestSession(t, felicatest.NewCard(), srv)

	snap, err := NewReader(s).Collect(context.Background())
	require.NoError(t, err)

	// The refused section is reported, everything else is read.
	assert.Contains(t, snap.Errors, "issuance2")
	assert.Nil(t, snap.Issuance2)
	assert.Empty(t, snap.Aborted)
	require.NotNil(t, snap.Issuance)
	require.NotNil(t, snap.CommuterPass)
	assert.Len(t, snap.History, 2)
}

func TestCollectEstablishFailure(t *testing.T) {
	srv := felicatest.NewRelayServer()
	defer srv.Close()
	srv.FailPhase = "auth2"

	s, _ := newTestSession(t, felicatest.NewCard(), srv)

	snap, err := NewReader(s).Collect(context.Background())
	assert.Nil(t, snap)
	assert.Equal(t, ReasonAuthenticationFailed, ReasonOf(err))
}
