// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{0, 1, 8, 16, 64, 253} {
		payload := make([]byte, n)
		_, err := rng.Read(payload)
		require.NoError(t, err)

		raw, err := EncodeCommand(0x14, payload)
		require.NoError(t, err, "payload of %dB", n)
		require.Len(t, raw, 2+n)
		assert.Equal(t, byte(2+n), raw[0])

		code, got, err := DecodeResponse(raw)
		require.NoError(t, err)
		assert.Equal(t, byte(0x14), code)
		assert.True(t, bytes.Equal(payload, got), "payload of %dB did not round-trip", n)
	}
}

func TestEncodeCommandTooLong(t *testing.T) {
	_, err := EncodeCommand(0x14, make([]byte, 254))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeResponseMalformed(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty":          {},
		"one byte":       {0x01},
		"declared short": {0x03, 0x01, 0xAA, 0xBB},
		"declared long":  {0x05, 0x01, 0xAA},
		"declared zero":  {0x00, 0x01},
	} {
		_, _, err := DecodeResponse(raw)
		assert.ErrorIs(t, err, ErrMalformedFrame, name)
	}
}

func TestPollingRoundTrip(t *testing.T) {
	cmd := EncodePolling(0x0003, 0x01, 0x00)
	require.Equal(t, []byte{0x06, 0x00, 0x00, 0x03, 0x01, 0x00}, cmd)

	idm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	pmm := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	body := append(append([]byte{}, idm...), pmm...)
	body = append(body, 0x00, 0x03)

	raw, err := EncodeCommand(RespPolling, body)
	require.NoError(t, err)
	code, payload, err := DecodeResponse(raw)
	require.NoError(t, err)

	resp, err := ParsePollingResponse(code, payload)
	require.NoError(t, err)
	assert.Equal(t, idm, resp.IDm[:])
	assert.Equal(t, pmm, resp.PMm[:])
	assert.Equal(t, []byte{0x00, 0x03}, resp.RequestData)
}

func TestParsePollingResponseRejectsOtherCodes(t *testing.T) {
	_, err := ParsePollingResponse(0x07, make([]byte, 16))
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = ParsePollingResponse(RespPolling, make([]byte, 10))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeReadPayload(t *testing.T) {
	payload, err := EncodeReadPayload(4, []int{0, 1, 19})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x84, 0x00, 0x84, 0x01, 0x84, 0x13}, payload)
}

func TestEncodeReadPayloadValidation(t *testing.T) {
	_, err := EncodeReadPayload(16, []int{0})
	require.Error(t, err)

	_, err = EncodeReadPayload(0, []int{256})
	require.Error(t, err)

	_, err = EncodeReadPayload(0, make([]int, MaxBlocksPerRead+1))
	require.Error(t, err)
}

func TestParseReadResponse(t *testing.T) {
	body := []byte{0x00, 0x00, 0x02}
	blockA := bytes.Repeat([]byte{0xAA}, BlockSize)
	blockB := bytes.Repeat([]byte{0xBB}, BlockSize)
	body = append(body, blockA...)
	body = append(body, blockB...)

	blocks, err := ParseReadResponse(body, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, blockA, blocks[0])
	assert.Equal(t, blockB, blocks[1])

	// Returned blocks must be copies, not views into the body.
	body[3] = 0x00
	assert.Equal(t, byte(0xAA), blocks[0][0])
}

func TestParseReadResponseStatusError(t *testing.T) {
	_, err := ParseReadResponse([]byte{0xA6, 0x01, 0x00}, 1)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, uint16(0xA601), statusErr.Code())
}

func TestParseReadResponseMalformed(t *testing.T) {
	_, err := ParseReadResponse([]byte{0x00, 0x00}, 1)
	require.ErrorIs(t, err, ErrMalformedFrame)

	// Count mismatch.
	_, err = ParseReadResponse(append([]byte{0x00, 0x00, 0x02}, make([]byte, 2*BlockSize)...), 1)
	require.ErrorIs(t, err, ErrMalformedFrame)

	// Truncated block data.
	_, err = ParseReadResponse(append([]byte{0x00, 0x00, 0x01}, make([]byte, BlockSize-1)...), 1)
	require.ErrorIs(t, err, ErrMalformedFrame)
}
