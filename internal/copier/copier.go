// Package copier rewrites a fetched trace so it can be re-ingested under a
// new identity: every run gets a fresh ID, parent references are remapped,
// dotted orders are recomputed, and provenance metadata records where each
// run came from.
package copier

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/langchain-ai/langsmith-trace-tools/internal/model"
)

var (
	// ErrNoRoot is returned when no run in the trace lacks a parent.
	ErrNoRoot = errors.New("trace has no root run")
	// ErrMultipleRoots is returned when more than one run lacks a parent.
	// The Python tooling silently let the last root win; failing fast is
	// deliberate here since a multi-root input is a corrupt fetch.
	ErrMultipleRoots = errors.New("trace has more than one root run")
	// ErrUnknownParent is returned when a run references a parent that is
	// not part of the fetched trace.
	ErrUnknownParent = errors.New("parent run not found in trace")
	// ErrBadTimestamp is returned when a run carries a start_time that
	// cannot be parsed.
	ErrBadTimestamp = errors.New("unparseable start_time")
)

// Options configures one Transform call.
type Options struct {
	// Project is stamped onto every rewritten run as its session_name.
	Project string
	// PreserveTimestamps keeps the original start/end times. When false,
	// start_time becomes the current instant and end_time is cleared.
	// Either way the dotted order is derived from the original start time
	// so the trace keeps its recorded execution order.
	PreserveTimestamps bool
	// NewID supplies run identifiers. Defaults to uuid.New.
	NewID func() uuid.UUID
	// Now supplies the current instant. Defaults to time.Now.
	Now func() time.Time
}

// wireTime is how rewritten start times are serialized. LangSmith returns
// microsecond-precision RFC 3339, so refreshed timestamps match.
const wireTime = "2006-01-02T15:04:05.000000Z07:00"

// rewrite holds the per-call state: the old→new ID map and the old-ID→new
// dotted-order map. A fresh rewrite is built for every Transform call, so
// independent traces never share state.
type rewrite struct {
	opts    Options
	traceID string
	ids     map[string]string
	dotted  map[string]string
}

// Transform rewrites the runs of one shared trace for re-ingestion. The
// input may arrive in any order; it is sorted by dotted_order first, which
// puts every parent before its children. The returned slice is in that
// sorted order, root first, so the root's ID (== every run's trace_id) is
// available as *out[0].TraceID.
func Transform(runs []model.Run, opts Options) ([]model.Run, error) {
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("empty trace: %w", ErrNoRoot)
	}

	sorted := slices.Clone(runs)
	slices.SortStableFunc(sorted, func(a, b model.Run) int {
		return strings.Compare(dottedOf(a), dottedOf(b))
	})

	rw := &rewrite{
		opts:   opts,
		ids:    make(map[string]string, len(sorted)),
		dotted: make(map[string]string, len(sorted)),
	}

	// First pass: fresh IDs for every run, validating the tree while at
	// it. The sole root's new ID becomes the shared trace ID.
	for _, r := range sorted {
		if r.ID == nil || *r.ID == "" {
			return nil, errors.New("run without an id in trace")
		}
		if _, dup := rw.ids[*r.ID]; dup {
			return nil, fmt.Errorf("duplicate run id %s in trace", *r.ID)
		}
		rw.ids[*r.ID] = opts.NewID().String()
		if isRoot(r) {
			if rw.traceID != "" {
				return nil, fmt.Errorf("run %s: %w", *r.ID, ErrMultipleRoots)
			}
			rw.traceID = rw.ids[*r.ID]
		}
	}
	if rw.traceID == "" {
		return nil, ErrNoRoot
	}
	for _, r := range sorted {
		if !isRoot(r) {
			if _, ok := rw.ids[*r.ParentRunID]; !ok {
				return nil, fmt.Errorf("run %s references parent %s: %w", *r.ID, *r.ParentRunID, ErrUnknownParent)
			}
		}
	}

	// Second pass: rewrite each run. Parents were sorted first, so every
	// child finds its parent's new dotted order already recorded.
	out := make([]model.Run, 0, len(sorted))
	for _, r := range sorted {
		t, err := rw.one(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (rw *rewrite) one(src model.Run) (model.Run, error) {
	oldID := *src.ID
	newID := rw.ids[oldID]
	traceID := rw.traceID
	project := rw.opts.Project

	var parent *string
	if !isRoot(src) {
		p := rw.ids[*src.ParentRunID]
		parent = &p
	}

	// The dotted order always encodes the recorded start time, even when
	// the visible timestamps are refreshed below. A run without a start
	// time is slotted at the current instant.
	startedAt := rw.opts.Now().UTC()
	if src.StartTime != nil {
		t, err := parseStartTime(*src.StartTime)
		if err != nil {
			return model.Run{}, fmt.Errorf("run %s: %w", oldID, err)
		}
		startedAt = t
	}

	out := model.Run{
		ID:               &newID,
		TraceID:          &traceID,
		ParentRunID:      parent,
		Name:             src.Name,
		RunType:          src.RunType,
		StartTime:        src.StartTime,
		EndTime:          src.EndTime,
		SessionName:      &project,
		Inputs:           src.Inputs,
		Outputs:          src.Outputs,
		Error:            src.Error,
		Serialized:       src.Serialized,
		Events:           src.Events,
		Tags:             src.Tags,
		TotalTokens:      src.TotalTokens,
		PromptTokens:     src.PromptTokens,
		CompletionTokens: src.CompletionTokens,
		FirstTokenTime:   src.FirstTokenTime,
	}

	if !rw.opts.PreserveTimestamps {
		now := rw.opts.Now().UTC().Format(wireTime)
		out.StartTime = &now
		out.EndTime = nil
	}

	out.Extra = withProvenance(src.Extra, oldID)

	part := dottedTimestamp(startedAt) + strings.ReplaceAll(newID, "-", "")
	d := part
	if parent != nil {
		if pd, ok := rw.dotted[*src.ParentRunID]; ok {
			d = pd + "." + part
		} else {
			// Pre-sorting guarantees the parent was rewritten first;
			// reaching this branch means the input dotted orders were
			// inconsistent with the parent links.
			slog.Warn("parent dotted order unavailable, emitting bare dotted order",
				"run_id", oldID, "parent_run_id", *src.ParentRunID)
		}
	}
	out.DottedOrder = &d
	rw.dotted[oldID] = d

	return out, nil
}

// withProvenance returns a copy of extra whose metadata records the copy.
// The top level and the metadata map are cloned so the caller's fetched runs
// are left untouched.
func withProvenance(extra map[string]interface{}, originalID string) map[string]interface{} {
	out := map[string]interface{}{}
	if extra != nil {
		out = maps.Clone(extra)
	}
	meta := map[string]interface{}{}
	if m, ok := out["metadata"].(map[string]interface{}); ok {
		meta = maps.Clone(m)
	}
	meta["copied_from_shared_trace"] = true
	meta["original_run_id"] = originalID
	out["metadata"] = meta
	return out
}

func isRoot(r model.Run) bool {
	return r.ParentRunID == nil || *r.ParentRunID == ""
}

func dottedOf(r model.Run) string {
	if r.DottedOrder == nil {
		return ""
	}
	return *r.DottedOrder
}

// dottedTimestamp renders a start time as the separator-free, microsecond
// precision prefix of a dotted-order segment, e.g. 20230505T051324571809Z.
func dottedTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%sT%s%06dZ", t.Format("20060102"), t.Format("150405"), t.Nanosecond()/1000)
}

// parseStartTime accepts the timestamp shapes the API emits: RFC 3339 with or
// without fractional seconds, and the zone-less ISO form (taken as UTC).
func parseStartTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadTimestamp)
}
