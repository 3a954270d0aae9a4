// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package record turns decrypted FeliCa block data into typed records.
//
// All functions are pure: the same input bytes always produce the same
// record, with no locale or timezone dependence. Block layouts follow the
// Suica-family card format; station and line codes are left as raw numbers
// for an external resolver.
package record

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/text/encoding/japanese"
)

// Record is a decoded block or block group. Concrete types are IssuanceInfo1,
// IssuanceInfo2, Attributes, TopupInfo, HistoryEntry, CommuterPassSection,
// GateEntry, SFGateEntry and UnknownBlock.
type Record interface {
	isRecord()
}

// StationRef is a raw line/station code pair. Name resolution is left to the
// stations package or another external lookup.
type StationRef struct {
	Line    uint8 `json:"line"`
	Station uint8 `json:"station"`
}

// IssuanceInfo1 is the primary issuance area (service 0x0048, blocks 0-3 as
// one 64-byte group): card-holder data and issuing metadata.
type IssuanceInfo1 struct {
	OwnerName    string     `json:"owner_name"`
	PhoneNumber  string     `json:"phone_number"`
	Age          string     `json:"age"`
	BirthDate    Date       `json:"birth_date"`
	Deposit      uint16     `json:"deposit"`
	SecondaryIDi IDi        `json:"secondary_idi"`
	IssuerID     uint16     `json:"issuer_id"`
	IssuedBy     uint8      `json:"issued_by"`
	IssuedAt     StationRef `json:"issued_at"`
	IssuedOn     Date       `json:"issued_on"`
	ExpiresOn    Date       `json:"expires_on"`
}

// IssuanceInfo2 is the secondary issuance block (service 0x0810, block 0).
// Its exact role on the card is not fully charted; the fields mirror the
// attribute block.
type IssuanceInfo2 struct {
	Balance    uint16 `json:"balance"`
	RecordedOn Date   `json:"recorded_on"`
	Sequence   uint16 `json:"sequence"`
}

// Attributes is the card attribute block (service 0x0088, block 0).
type Attributes struct {
	CardType uint8  `json:"card_type"`
	Region   uint8  `json:"region"`
	Balance  uint16 `json:"balance"`
	Sequence uint16 `json:"sequence"`
}

// TopupInfo is the most recent charge (service 0x08C8, blocks 0-2 as one
// group; only the first block carries charted fields).
type TopupInfo struct {
	Equipment uint8      `json:"equipment"`
	Station   StationRef `json:"station"`
	Amount    uint16     `json:"amount"`
}

// TransactionGoods is the history transaction type for goods sales; such
// entries carry a time of day instead of entry/exit stations.
const TransactionGoods = 0x46

// HistoryEntry is one ride/charge/sale record from the transaction history
// ring (service 0x090C, blocks 0-19). An all-zero equipment byte marks an
// empty ring slot.
type HistoryEntry struct {
	Equipment uint8 `json:"equipment"`
	Type      uint8 `json:"type"`
	Payment   uint8 `json:"payment"`
	GateUsage uint8 `json:"gate_usage"`
	Date      Date  `json:"date"`

	// Time is set for goods sales (Type == TransactionGoods); Entry and Exit
	// are set for everything else.
	Time  *Time       `json:"time,omitempty"`
	Entry *StationRef `json:"entry,omitempty"`
	Exit  *StationRef `json:"exit,omitempty"`

	Balance  uint16 `json:"balance"`
	Sequence uint16 `json:"sequence"`
}

// IsEmpty reports whether the entry is an unused ring slot.
func (h HistoryEntry) IsEmpty() bool {
	return h.Equipment == 0
}

// CommuterPassSection is the commuter pass area (service 0x1048, blocks 0-2
// as one 48-byte group).
type CommuterPassSection struct {
	ValidFrom Date       `json:"valid_from"`
	ValidTo   Date       `json:"valid_to"`
	Start     StationRef `json:"start"`
	End       StationRef `json:"end"`
	Via1      StationRef `json:"via1"`
	Via2      StationRef `json:"via2"`
	IssuedOn  Date       `json:"issued_on"`
}

// GateEntry is one gate passage record (service 0x108C, blocks 0-2, one
// entry per block).
type GateEntry struct {
	InOutType          uint8      `json:"in_out_type"`
	IntermediateType   uint8      `json:"intermediate_type"`
	Station            StationRef `json:"station"`
	DeviceID           uint16     `json:"device_id"`
	Date               Date       `json:"date"`
	Time               ClockTime  `json:"time"`
	Amount             uint16     `json:"amount"`
	CommuterFare       uint16     `json:"commuter_fare"`
	NearestPassStation StationRef `json:"nearest_pass_station"`
}

// SFGateEntry is the stored-fare gate entry area (service 0x10C8, blocks 0-1
// as one 32-byte group), tracked separately from ordinary ride history.
type SFGateEntry struct {
	Entry StationRef `json:"entry"`

	IntermediateDate      Date       `json:"intermediate_date"`
	IntermediateEntryTime ClockTime  `json:"intermediate_entry_time"`
	IntermediateEntry     StationRef `json:"intermediate_entry"`
	Unknown1              byte       `json:"unknown1"`
	IntermediateExitTime  ClockTime  `json:"intermediate_exit_time"`
	IntermediateExit      StationRef `json:"intermediate_exit"`
	Unknown2              byte       `json:"unknown2"`
}

// UnknownBlock preserves a block this package has no parser for. The raw
// bytes are copied, never dropped, so uncharted areas stay inspectable.
type UnknownBlock struct {
	Service ServiceCode
	Block   int
	Raw     []byte
}

// MarshalJSON renders the raw bytes as hex so exports stay lossless and
// readable.
func (u UnknownBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Service uint16 `json:"service"`
		Block   int    `json:"block"`
		Raw     string `json:"raw"`
	}{uint16(u.Service), u.Block, hex.EncodeToString(u.Raw)})
}

func (IssuanceInfo1) isRecord()       {}
func (IssuanceInfo2) isRecord()       {}
func (Attributes) isRecord()          {}
func (TopupInfo) isRecord()           {}
func (HistoryEntry) isRecord()        {}
func (CommuterPassSection) isRecord() {}
func (GateEntry) isRecord()           {}
func (SFGateEntry) isRecord()         {}
func (UnknownBlock) isRecord()        {}

func parseIssuance1(b []byte) Record {
	var info IssuanceInfo1

	// Block 0: card-holder name, Shift-JIS with space padding.
	name := b[0:16]
	if decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(name); err == nil {
		name = decoded
	}
	info.OwnerName = strings.TrimRight(string(name), " \x00")

	// Block 1: personal data.
	info.PhoneNumber = strings.TrimRight(hex.EncodeToString(b[16:24]), "f")
	info.Age = hex.EncodeToString(b[24:25])
	info.BirthDate = DecodeDate(binary.BigEndian.Uint16(b[25:27]))
	info.Deposit = binary.LittleEndian.Uint16(b[28:30])

	// Block 2: secondary issue identifier.
	copy(info.SecondaryIDi[:], b[32:40])

	// Block 3: issuing metadata.
	info.IssuerID = binary.BigEndian.Uint16(b[48:50])
	info.IssuedBy = b[50]
	info.IssuedAt = StationRef{Line: b[51], Station: b[52]}
	info.IssuedOn = DecodeDate(binary.BigEndian.Uint16(b[55:57]))
	info.ExpiresOn = DecodeDate(binary.BigEndian.Uint16(b[62:64]))

	return info
}

func parseIssuance2(b []byte) Record {
	return IssuanceInfo2{
		Balance:    binary.LittleEndian.Uint16(b[0:2]),
		RecordedOn: DecodeDate(binary.BigEndian.Uint16(b[8:10])),
		Sequence:   binary.BigEndian.Uint16(b[14:16]),
	}
}

func parseAttributes(b []byte) Record {
	return Attributes{
		CardType: b[8] >> 4,
		Region:   b[8] & 0x0F,
		Balance:  binary.LittleEndian.Uint16(b[11:13]),
		Sequence: binary.BigEndian.Uint16(b[14:16]),
	}
}

func parseTopup(b []byte) Record {
	return TopupInfo{
		Equipment: b[0],
		Station:   StationRef{Line: b[1], Station: b[2]},
		Amount:    binary.LittleEndian.Uint16(b[5:7]),
	}
}

func parseHistory(b []byte) Record {
	if b[0] == 0x00 {
		return HistoryEntry{}
	}

	entry := HistoryEntry{
		Equipment: b[0],
		Type:      b[1] & 0x7F,
		Payment:   b[2],
		GateUsage: b[3],
		Date:      DecodeDate(binary.BigEndian.Uint16(b[4:6])),
		Balance:   binary.LittleEndian.Uint16(b[10:12]),
		Sequence:  binary.BigEndian.Uint16(b[13:15]),
	}

	if entry.Type == TransactionGoods {
		t := DecodeTime(binary.BigEndian.Uint16(b[6:8]))
		entry.Time = &t
	} else {
		entry.Entry = &StationRef{Line: b[6], Station: b[7]}
		entry.Exit = &StationRef{Line: b[8], Station: b[9]}
	}
	return entry
}

func parseCommuterPass(b []byte) Record {
	return CommuterPassSection{
		ValidFrom: DecodeDate(binary.BigEndian.Uint16(b[0:2])),
		ValidTo:   DecodeDate(binary.BigEndian.Uint16(b[2:4])),
		Start:     StationRef{Line: b[8], Station: b[9]},
		End:       StationRef{Line: b[10], Station: b[11]},
		Via1:      StationRef{Line: b[12], Station: b[13]},
		Via2:      StationRef{Line: b[14], Station: b[15]},
		// Supplemental block (block 2) carries the issue date.
		IssuedOn: DecodeDate(binary.BigEndian.Uint16(b[37:39])),
	}
}

func parseGateEntry(b []byte) Record {
	return GateEntry{
		InOutType:          b[0],
		IntermediateType:   b[1],
		Station:            StationRef{Line: b[2], Station: b[3]},
		DeviceID:           binary.BigEndian.Uint16(b[4:6]),
		Date:               DecodeDate(binary.BigEndian.Uint16(b[6:8])),
		Time:               DecodeClockTime(b[8], b[9]),
		Amount:             binary.LittleEndian.Uint16(b[10:12]),
		CommuterFare:       binary.LittleEndian.Uint16(b[12:14]),
		NearestPassStation: StationRef{Line: b[14], Station: b[15]},
	}
}

func parseSFGateEntry(b []byte) Record {
	return SFGateEntry{
		Entry: StationRef{Line: b[0], Station: b[1]},

		// Second block: fare-collection intermediate gate passage.
		IntermediateDate:      DecodeDate(binary.BigEndian.Uint16(b[16:18])),
		IntermediateEntryTime: DecodeClockTime(b[18], b[19]),
		IntermediateEntry:     StationRef{Line: b[20], Station: b[21]},
		Unknown1:              b[22],
		IntermediateExitTime:  DecodeClockTime(b[23], b[24]),
		IntermediateExit:      StationRef{Line: b[25], Station: b[26]},
		Unknown2:              b[27],
	}
}
