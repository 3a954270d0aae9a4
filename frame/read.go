// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"errors"
	"fmt"
)

var (
	errServiceIndexRange = errors.New("service index must be in range 0..15")
	errBlockNumberRange  = errors.New("block number must be in range 0..255")
	errTooManyBlocks     = fmt.Errorf("at most %d blocks per read", MaxBlocksPerRead)
)

// EncodeReadPayload builds the body of a Read command for a list of block
// numbers within one service: a count byte followed by two-byte block list
// elements (0x80|serviceIndex, blockNumber).
func EncodeReadPayload(serviceIndex int, blocks []int) ([]byte, error) {
	if serviceIndex < 0 || serviceIndex > 15 {
		return nil, errServiceIndexRange
	}
	if len(blocks) > MaxBlocksPerRead {
		return nil, errTooManyBlocks
	}

	buf := make([]byte, 0, 1+2*len(blocks))
	buf = append(buf, byte(len(blocks)))
	for _, n := range blocks {
		if n < 0 || n > 255 {
			return nil, errBlockNumberRange
		}
		buf = append(buf, 0x80|byte(serviceIndex), byte(n))
	}
	return buf, nil
}

// ParseReadResponse interprets the plaintext body of a Read response:
// [SF1][SF2][count][count*16 block bytes]. A non-zero SF1 yields a
// StatusError. The returned blocks are copies.
func ParseReadResponse(body []byte, wantBlocks int) ([][]byte, error) {
	if len(body) < 3 {
		return nil, fmt.Errorf("%w: read response body of %dB", ErrMalformedFrame, len(body))
	}
	if body[0] != 0x00 {
		return nil, &StatusError{Flag1: body[0], Flag2: body[1]}
	}
	if int(body[2]) != wantBlocks {
		return nil, fmt.Errorf("%w: want %d blocks, card returned %d", ErrMalformedFrame, wantBlocks, body[2])
	}
	if len(body) < 3+wantBlocks*BlockSize {
		return nil, fmt.Errorf("%w: %d block bytes for %d blocks", ErrMalformedFrame, len(body)-3, wantBlocks)
	}

	data := body[3:]
	blocks := make([][]byte, wantBlocks)
	for i := range blocks {
		blocks[i] = append([]byte(nil), data[i*BlockSize:(i+1)*BlockSize]...)
	}
	return blocks, nil
}
