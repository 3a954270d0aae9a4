// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package record

import "fmt"

// ServiceCode identifies a FeliCa service node on the Suica-family layout.
type ServiceCode uint16

// Service nodes of the Suica-family layout (system code 0x0003).
const (
	SvcIssuance   ServiceCode = 0x0048
	SvcAttributes ServiceCode = 0x0088
	SvcIssuance2  ServiceCode = 0x0810
	SvcTopup      ServiceCode = 0x08C8
	SvcHistory    ServiceCode = 0x090C
	SvcUncharted  ServiceCode = 0x1008
	SvcCommuter   ServiceCode = 0x1048
	SvcGateLog    ServiceCode = 0x108C
	SvcSFGateLog  ServiceCode = 0x10C8
)

// LengthError reports input whose size does not match the parser's declared
// block length. No partial record is ever produced.
type LengthError struct {
	Service ServiceCode
	Block   int
	Want    int
	Got     int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("service 0x%04X block %d: want %dB, got %dB", uint16(e.Service), e.Block, e.Want, e.Got)
}

// dispatch is the fixed (service, block range) to parser mapping. Group
// parsers consume several consecutive blocks read as one unit and are keyed
// at block 0.
var dispatch = []struct {
	service              ServiceCode
	firstBlock, lastBlock int
	length               int
	parse                func([]byte) Record
}{
	{SvcIssuance, 0, 0, 64, parseIssuance1},
	{SvcAttributes, 0, 0, 16, parseAttributes},
	{SvcIssuance2, 0, 0, 16, parseIssuance2},
	{SvcTopup, 0, 0, 48, parseTopup},
	{SvcHistory, 0, 19, 16, parseHistory},
	{SvcCommuter, 0, 0, 48, parseCommuterPass},
	{SvcGateLog, 0, 2, 16, parseGateEntry},
	{SvcSFGateLog, 0, 0, 32, parseSFGateEntry},
}

// Decode maps decrypted block bytes to a typed record. Lengths are checked
// against the parser's declared size before any field is touched. Service and
// block combinations without a parser decode to UnknownBlock with the raw
// bytes copied; they never fail.
func Decode(service ServiceCode, block int, data []byte) (Record, error) {
	for _, e := range dispatch {
		if e.service != service || block < e.firstBlock || block > e.lastBlock {
			continue
		}
		if len(data) != e.length {
			return nil, &LengthError{Service: service, Block: block, Want: e.length, Got: len(data)}
		}
		return e.parse(data), nil
	}

	return UnknownBlock{
		Service: service,
		Block:   block,
		Raw:     append([]byte(nil), data...),
	}, nil
}
