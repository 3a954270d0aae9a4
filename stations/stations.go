// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// Package stations resolves raw line/station code pairs to names.
//
// The dataset is the community-maintained station code CSV with hex-coded
// area, line and station order columns. The core decoder only ever emits raw
// codes; this package is the external resolver layered on top.
package stations

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Column headers of the station code CSV.
const (
	colArea    = "地区コード(16進)"
	colLine    = "線区コード(16進)"
	colStation = "駅順コード(16進)"
	colCompany = "会社名"
	colLineN   = "線区名"
	colName    = "駅名"
	colNotes   = "備考"
)

// Station is one row of the dataset.
type Station struct {
	AreaCode    uint8
	LineCode    uint8
	StationCode uint8

	Company string
	Line    string
	Name    string
	Notes   string
}

// Lookup maps (line code, station order code) to station rows.
type Lookup struct {
	byCode map[uint16]Station
}

// Load reads the CSV dataset. Rows with malformed hex codes are rejected;
// the column order is taken from the header row.
func Load(r io.Reader) (*Lookup, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colLine, colStation, colCompany, colLineN, colName} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("station dataset missing column %q", required)
		}
	}

	l := &Lookup{byCode: map[uint16]Station{}}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		st, err := parseRow(cols, row)
		if err != nil {
			return nil, err
		}
		l.byCode[key(st.LineCode, st.StationCode)] = st
	}
	return l, nil
}

// LoadFile reads the dataset from a file path.
func LoadFile(path string) (*Lookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open station dataset: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func parseRow(cols map[string]int, row []string) (Station, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	parseHex := func(name string) (uint8, error) {
		v, err := strconv.ParseUint(get(name), 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid hex code in column %q: %w", name, err)
		}
		return uint8(v), nil
	}

	var st Station
	var err error
	if area := get(colArea); area != "" {
		if st.AreaCode, err = parseHex(colArea); err != nil {
			return Station{}, err
		}
	}
	if st.LineCode, err = parseHex(colLine); err != nil {
		return Station{}, err
	}
	if st.StationCode, err = parseHex(colStation); err != nil {
		return Station{}, err
	}
	st.Company = get(colCompany)
	st.Line = get(colLineN)
	st.Name = get(colName)
	st.Notes = get(colNotes)
	return st, nil
}

func key(line, station uint8) uint16 {
	return uint16(line)<<8 | uint16(station)
}

// Resolve returns the station for a line/station order pair.
func (l *Lookup) Resolve(line, station uint8) (Station, bool) {
	st, ok := l.byCode[key(line, station)]
	return st, ok
}

// Format renders "company line station", or an explicit unknown marker with
// the raw codes.
func (l *Lookup) Format(line, station uint8) string {
	st, ok := l.Resolve(line, station)
	if !ok {
		return fmt.Sprintf("不明 (線区コード: 0x%02X, 駅順コード: 0x%02X)", line, station)
	}
	return fmt.Sprintf("%s %s %s", st.Company, st.Line, st.Name)
}

// Len returns the number of loaded rows.
func (l *Lookup) Len() int { return len(l.byCode) }
