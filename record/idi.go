// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// IDi is the eight-byte issue identifier assigned to the card when it was
// issued. Its printable form is the four leading bytes in hex, a packed
// issue date rendered as yymmdd, and a five-digit decimal serial.
type IDi [8]byte

func (id IDi) String() string {
	head := strings.ToUpper(fmt.Sprintf("%x", id[0:4]))

	v := binary.BigEndian.Uint16(id[4:6])
	year := int(v>>9) & 0x3F
	month := int(v>>5) & 0x0F
	day := int(v) & 0x1F

	serial := binary.BigEndian.Uint16(id[6:8])

	return fmt.Sprintf("%s%02d%02d%02d%05d", head, year%100, month, day, serial)
}

// MarshalJSON renders the identifier in its printable form.
func (id IDi) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}
