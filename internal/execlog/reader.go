package execlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Recording is a parsed trace stream.
type Recording struct {
	RunID   string
	Entries []Entry
}

// ReplayNode is one node of the execution tree reconstructed from a trace.
type ReplayNode struct {
	Seq      int
	NodeID   string
	Kind     string
	Status   string
	Children []*ReplayNode
}

// Read parses a persisted trace stream. Streams with a missing or unknown
// format version are rejected outright.
func Read(r io.Reader) (*Recording, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty trace stream")
	}
	var h header
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("invalid trace header: %w", err)
	}
	if h.Version != Format {
		return nil, fmt.Errorf("unsupported trace format version %q, want %q", h.Version, Format)
	}

	rec := &Recording{RunID: h.RunID}
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("invalid trace entry: %w", err)
		}
		rec.Entries = append(rec.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Replay reconstructs the execution tree from the recording. The returned
// roots are in begin order; with a single top-level execution there is
// exactly one. Later records for the same seq (incomplete markers rewritten
// at flush) override earlier ones.
func (rec *Recording) Replay() []*ReplayNode {
	bySeq := make(map[int]*Entry, len(rec.Entries))
	order := make([]int, 0, len(rec.Entries))
	for i := range rec.Entries {
		e := &rec.Entries[i]
		if _, seen := bySeq[e.Seq]; !seen {
			order = append(order, e.Seq)
		}
		bySeq[e.Seq] = e
	}
	sort.Ints(order)

	nodes := make(map[int]*ReplayNode, len(order))
	var roots []*ReplayNode
	for _, seq := range order {
		e := bySeq[seq]
		nodes[seq] = &ReplayNode{Seq: seq, NodeID: e.NodeID, Kind: e.Kind, Status: e.Status}
	}
	for _, seq := range order {
		e := bySeq[seq]
		n := nodes[seq]
		if parent, ok := nodes[e.ParentSeq]; ok {
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
	}
	return roots
}
