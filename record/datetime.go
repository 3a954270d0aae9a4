// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package record

import "fmt"

// Date is the packed calendar date used across Suica-family blocks:
// seven bits of year (2000-based), four bits of month, five bits of day.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// DecodeDate unpacks a big-endian packed date value.
func DecodeDate(v uint16) Date {
	return Date{
		Year:  int(v >> 9),
		Month: int(v>>5) & 0x0F,
		Day:   int(v) & 0x1F,
	}
}

func (d Date) String() string {
	return fmt.Sprintf("%02d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether all fields are zero, i.e. the block carried no date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time is the packed time of day used by history entries: five bits of hour,
// six bits of minute, five bits of two-second units.
type Time struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// DecodeTime unpacks a big-endian packed time value.
func DecodeTime(v uint16) Time {
	return Time{
		Hour:   int(v >> 11),
		Minute: int(v>>5) & 0x3F,
		Second: int(v&0x1F) * 2,
	}
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ClockTime is an hour/minute pair stored as two BCD bytes, used by gate
// entries.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// DecodeClockTime unpacks two BCD bytes (hh, mm).
func DecodeClockTime(hh, mm byte) ClockTime {
	return ClockTime{
		Hour:   int(hh>>4)*10 + int(hh&0x0F),
		Minute: int(mm>>4)*10 + int(mm&0x0F),
	}
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
