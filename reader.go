// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

package felica

import (
	"context"
	"errors"

	"github.com/suicakit/go-felica/internal/logging"
	"github.com/suicakit/go-felica/record"
)

// section describes one read pass over a service: which blocks to fetch and
// how the decoder sees them. Grouped sections are decoded as one multi-block
// record; the rest decode block by block.
type section struct {
	name         string
	serviceIndex int
	service      record.ServiceCode
	blocks       int
	grouped      bool
	stopAtEmpty  bool
}

// sections is the fixed read plan of a Suica-family card, in on-card order.
// The service indexes match DefaultServiceNodes.
var sections = []section{
	{name: "issuance", serviceIndex: 0, service: record.SvcIssuance, blocks: 4, grouped: true},
	{name: "attributes", serviceIndex: 1, service: record.SvcAttributes, blocks: 1},
	{name: "issuance2", serviceIndex: 2, service: record.SvcIssuance2, blocks: 1},
	{name: "last_topup", serviceIndex: 3, service: record.SvcTopup, blocks: 3, grouped: true},
	{name: "history", serviceIndex: 4, service: record.SvcHistory, blocks: 20, stopAtEmpty: true},
	{name: "uncharted", serviceIndex: 5, service: record.SvcUncharted, blocks: 10},
	{name: "commuter_pass", serviceIndex: 6, service: record.SvcCommuter, blocks: 3, grouped: true},
	{name: "gate_log", serviceIndex: 7, service: record.SvcGateLog, blocks: 3},
	{name: "sf_gate_log", serviceIndex: 8, service: record.SvcSFGateLog, blocks: 2, grouped: true},
}

// Reader orchestrates one complete card read: establish the session, walk
// the known services, decode every block, and assemble the snapshot.
type Reader struct {
	session *Session
}

// NewReader wraps a session. The session must be fresh (StateIdle); Collect
// consumes it.
func NewReader(s *Session) *Reader {
	return &Reader{session: s}
}

// Collect authenticates and reads the whole card. A failed section is
// recorded in the snapshot's Errors and does not stop the pass; a terminal
// session failure (card gone, timeout) stops further reads and returns the
// partial snapshot together with the error. Records decoded before an abort
// are always kept.
func (r *Reader) Collect(ctx context.Context) (*Snapshot, error) {
	if err := r.session.Establish(ctx); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Identity: r.session.Identity(),
		Errors:   map[string]string{},
	}

	for _, sec := range sections {
		if err := r.collectSection(ctx, snap, sec); err != nil {
			var serr *SessionError
			if errors.As(err, &serr) {
				snap.Aborted = serr.Reason.String()
				logging.Warnf("collection aborted at section %s: %s", sec.name, serr.Reason)
				return snap, err
			}
			snap.Errors[sec.name] = err.Error()
			logging.Warnf("section %s failed: %v", sec.name, err)
		}
	}

	logging.Infof("collected %d records", snap.RecordCount())
	return snap, nil
}

func (r *Reader) collectSection(ctx context.Context, snap *Snapshot, sec section) error {
	blocks := make([]int, sec.blocks)
	for i := range blocks {
		blocks[i] = i
	}

	data, err := r.session.ReadBlocks(ctx, sec.serviceIndex, blocks)
	if err != nil {
		return err
	}

	if sec.grouped {
		var group []byte
		for _, b := range data {
			group = append(group, b...)
		}
		rec, err := record.Decode(sec.service, 0, group)
		if err != nil {
			return err
		}
		snap.add(rec)
		return nil
	}

	for i, b := range data {
		rec, err := record.Decode(sec.service, i, b)
		if err != nil {
			return err
		}
		if sec.stopAtEmpty {
			if h, ok := rec.(record.HistoryEntry); ok && h.IsEmpty() {
				break
			}
		}
		snap.add(rec)
	}
	return nil
}
