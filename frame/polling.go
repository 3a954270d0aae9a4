// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package frame

import "fmt"

// PollingResponse is the card's answer to a Polling command: the manufacturer
// identifier and parameters, plus optional request data.
type PollingResponse struct {
	IDm [8]byte
	PMm [8]byte

	// RequestData carries the two extra bytes the card appends when the
	// polling command asked for them (e.g. the system code).
	RequestData []byte
}

// EncodePolling builds a Polling command frame for the given system code.
// requestCode selects the optional request data; timeSlot bounds the number
// of response slots.
func EncodePolling(systemCode uint16, requestCode, timeSlot byte) []byte {
	buf, _ := EncodeCommand(CmdPolling, []byte{
		byte(systemCode >> 8), byte(systemCode),
		requestCode, timeSlot,
	})
	return buf
}

// ParsePollingResponse interprets a decoded response as a Polling answer.
// Any other response code or a short body fails with ErrMalformedFrame; the
// caller decides whether that means an unsupported card.
func ParsePollingResponse(code byte, payload []byte) (*PollingResponse, error) {
	if code != RespPolling {
		return nil, fmt.Errorf("%w: response code 0x%02X is not a polling response", ErrMalformedFrame, code)
	}
	if len(payload) != 16 && len(payload) != 18 {
		return nil, fmt.Errorf("%w: polling response body of %dB", ErrMalformedFrame, len(payload))
	}

	var resp PollingResponse
	copy(resp.IDm[:], payload[:8])
	copy(resp.PMm[:], payload[8:16])
	if len(payload) == 18 {
		resp.RequestData = []byte{payload[16], payload[17]}
	}
	return &resp, nil
}
