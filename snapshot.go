// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felica

import "github.com/suicakit/go-felica/record"

// Snapshot is everything collected in one card session. It is built
// incrementally by a Reader and frozen once the session completes or is
// abandoned; all records belong to the one identity it carries. The zero
// values of omitted sections mean "not read", with the reason in Errors or
// Aborted.
type Snapshot struct {
	Identity CardIdentity `json:"identity"`

	Issuance     *record.IssuanceInfo1       `json:"issuance,omitempty"`
	Attributes   *record.Attributes          `json:"attributes,omitempty"`
	Issuance2    *record.IssuanceInfo2       `json:"issuance2,omitempty"`
	LastTopup    *record.TopupInfo           `json:"last_topup,omitempty"`
	History      []record.HistoryEntry       `json:"history,omitempty"`
	CommuterPass *record.CommuterPassSection `json:"commuter_pass,omitempty"`
	GateLog      []record.GateEntry          `json:"gate_log,omitempty"`
	SFGateLog    *record.SFGateEntry         `json:"sf_gate_log,omitempty"`

	// Unknown preserves every block no parser exists for.
	Unknown []record.UnknownBlock `json:"unknown,omitempty"`

	// Errors maps section names to per-section read failures that did not
	// abort the session.
	Errors map[string]string `json:"errors,omitempty"`

	// Aborted names the terminal failure that cut the collection short, if
	// any. Records decoded before the abort are kept.
	Aborted string `json:"aborted,omitempty"`
}

// add files a decoded record into its snapshot slot.
func (s *Snapshot) add(rec record.Record) {
	switch r := rec.(type) {
	case record.IssuanceInfo1:
		s.Issuance = &r
	case record.Attributes:
		s.Attributes = &r
	case record.IssuanceInfo2:
		s.Issuance2 = &r
	case record.TopupInfo:
		s.LastTopup = &r
	case record.HistoryEntry:
		if !r.IsEmpty() {
			s.History = append(s.History, r)
		}
	case record.CommuterPassSection:
		s.CommuterPass = &r
	case record.GateEntry:
		s.GateLog = append(s.GateLog, r)
	case record.SFGateEntry:
		s.SFGateLog = &r
	case record.UnknownBlock:
		s.Unknown = append(s.Unknown, r)
	}
}

// RecordCount returns the number of decoded records held, unknown blocks
// included.
func (s *Snapshot) RecordCount() int {
	n := len(s.History) + len(s.GateLog) + len(s.Unknown)
	for _, p := range []bool{
		s.Issuance != nil, s.Attributes != nil, s.Issuance2 != nil,
		s.LastTopup != nil, s.CommuterPass != nil, s.SFGateLog != nil,
	} {
		if p {
			n++
		}
	}
	return n
}

// StationRefs lists every raw station code referenced by the snapshot, for
// callers that resolve names in bulk.
func (s *Snapshot) StationRefs() []record.StationRef {
	var refs []record.StationRef
	if s.Issuance != nil {
		refs = append(refs, s.Issuance.IssuedAt)
	}
	if s.LastTopup != nil {
		refs = append(refs, s.LastTopup.Station)
	}
	for _, h := range s.History {
		if h.Entry != nil {
			refs = append(refs, *h.Entry)
		}
		if h.Exit != nil {
			refs = append(refs, *h.Exit)
		}
	}
	if s.CommuterPass != nil {
		refs = append(refs, s.CommuterPass.Start, s.CommuterPass.End,
			s.CommuterPass.Via1, s.CommuterPass.Via2)
	}
	for _, g := range s.GateLog {
		refs = append(refs, g.Station, g.NearestPassStation)
	}
	if s.SFGateLog != nil {
		refs = append(refs, s.SFGateLog.Entry,
			s.SFGateLog.IntermediateEntry, s.SFGateLog.IntermediateExit)
	}
	return refs
}
