package copier

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchain-ai/langsmith-trace-tools/internal/model"
)

// seqIDs returns a generator handing out predictable UUIDs so tests can pin
// down exact output values.
func seqIDs() func() uuid.UUID {
	n := 0
	return func() uuid.UUID {
		n++
		return uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012d", n))
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func run(id, parent, start, dotted string) model.Run {
	r := model.Run{ID: model.StringPtr(id)}
	if parent != "" {
		r.ParentRunID = model.StringPtr(parent)
	}
	if start != "" {
		r.StartTime = model.StringPtr(start)
	}
	if dotted != "" {
		r.DottedOrder = model.StringPtr(dotted)
	}
	return r
}

// sampleTrace is a three-level tree: root A, children B and D, grandchild C
// under B. The dotted orders are prefix-consistent, so lexicographic order is
// A, B, C, D.
func sampleTrace() []model.Run {
	return []model.Run{
		run("C", "B", "2023-05-05T05:13:26.000003Z", "t1A.t2B.t3C"),
		run("A", "", "2023-05-05T05:13:24.571809Z", "t1A"),
		run("D", "A", "2023-05-05T05:13:27.000004Z", "t1A.t4D"),
		run("B", "A", "2023-05-05T05:13:25.000002Z", "t1A.t2B"),
	}
}

func TestTransformPreservesSizeAndTopology(t *testing.T) {
	in := sampleTrace()
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true, NewID: seqIDs()})
	require.NoError(t, err)
	require.Len(t, out, len(in))

	// Map originals to outputs via provenance.
	byOriginal := map[string]model.Run{}
	for _, r := range out {
		meta := r.Extra["metadata"].(map[string]interface{})
		byOriginal[meta["original_run_id"].(string)] = r
	}
	require.Len(t, byOriginal, len(in))

	for _, pair := range [][2]string{{"A", "B"}, {"A", "D"}, {"B", "C"}} {
		parent, child := byOriginal[pair[0]], byOriginal[pair[1]]
		require.NotNil(t, child.ParentRunID, "child of %s lost its parent", pair[0])
		assert.Equal(t, *parent.ID, *child.ParentRunID)
	}

	roots := 0
	for _, r := range out {
		if r.ParentRunID == nil {
			roots++
			assert.Equal(t, *r.ID, *r.TraceID, "root id must be the trace id")
		}
	}
	assert.Equal(t, 1, roots)
}

func TestTransformAssignsFreshDistinctIDs(t *testing.T) {
	in := sampleTrace()
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)

	old := map[string]bool{}
	for _, r := range in {
		old[*r.ID] = true
	}
	seen := map[string]bool{}
	for _, r := range out {
		assert.False(t, old[*r.ID], "new id %s collides with an input id", *r.ID)
		assert.False(t, seen[*r.ID], "new id %s assigned twice", *r.ID)
		seen[*r.ID] = true
	}
}

func TestTransformSharesOneTraceID(t *testing.T) {
	out, err := Transform(sampleTrace(), Options{Project: "copies", PreserveTimestamps: true, NewID: seqIDs()})
	require.NoError(t, err)

	traceID := *out[0].TraceID
	for _, r := range out {
		require.NotNil(t, r.TraceID)
		assert.Equal(t, traceID, *r.TraceID)
		assert.Equal(t, "copies", *r.SessionName)
	}
	// Root sorts first, and its new id is the trace id.
	assert.Equal(t, *out[0].ID, traceID)
}

func TestTransformPreservesDottedOrderSorting(t *testing.T) {
	in := sampleTrace()
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)

	inSorted := slices.Clone(in)
	slices.SortStableFunc(inSorted, func(a, b model.Run) int {
		return strings.Compare(*a.DottedOrder, *b.DottedOrder)
	})
	outSorted := slices.Clone(out)
	slices.SortStableFunc(outSorted, func(a, b model.Run) int {
		return strings.Compare(*a.DottedOrder, *b.DottedOrder)
	})

	for i := range outSorted {
		meta := outSorted[i].Extra["metadata"].(map[string]interface{})
		assert.Equal(t, *inSorted[i].ID, meta["original_run_id"],
			"sorting the output by dotted_order must reproduce the input order")
	}
}

func TestTransformCopiesPayloadVerbatim(t *testing.T) {
	in := sampleTrace()
	src := &in[1] // root A
	src.Name = model.StringPtr("agent")
	src.RunType = model.StringPtr(model.RunTypeChain)
	src.EndTime = model.StringPtr("2023-05-05T05:13:30.000000Z")
	src.Inputs = map[string]interface{}{"question": "why"}
	src.Outputs = map[string]interface{}{"answer": float64(42)}
	src.Error = model.StringPtr("boom")
	src.Serialized = map[string]interface{}{"lc": float64(1)}
	src.Events = []interface{}{map[string]interface{}{"name": "start"}}
	src.Tags = []string{"prod", "eval"}
	tokens := 17
	src.TotalTokens = &tokens
	src.FirstTokenTime = model.StringPtr("2023-05-05T05:13:25.000000Z")

	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)

	var got model.Run
	for _, r := range out {
		if r.ParentRunID == nil {
			got = r
		}
	}
	assert.Equal(t, *src.Name, *got.Name)
	assert.Equal(t, *src.RunType, *got.RunType)
	assert.Equal(t, *src.StartTime, *got.StartTime)
	assert.Equal(t, *src.EndTime, *got.EndTime)
	assert.Equal(t, src.Inputs, got.Inputs)
	assert.Equal(t, src.Outputs, got.Outputs)
	assert.Equal(t, *src.Error, *got.Error)
	assert.Equal(t, src.Serialized, got.Serialized)
	assert.Equal(t, src.Events, got.Events)
	assert.Equal(t, src.Tags, got.Tags)
	assert.Equal(t, tokens, *got.TotalTokens)
	assert.Equal(t, *src.FirstTokenTime, *got.FirstTokenTime)
	assert.Nil(t, got.PromptTokens, "absent token fields stay absent")
}

func TestTransformInjectsProvenance(t *testing.T) {
	in := sampleTrace()
	in[1].Extra = map[string]interface{}{
		"runtime":  "python",
		"metadata": map[string]interface{}{"team": "search"},
	}

	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)

	for _, r := range out {
		meta, ok := r.Extra["metadata"].(map[string]interface{})
		require.True(t, ok, "every run gets extra.metadata")
		assert.Equal(t, true, meta["copied_from_shared_trace"])
		assert.NotEmpty(t, meta["original_run_id"])
	}

	var root model.Run
	for _, r := range out {
		if r.ParentRunID == nil {
			root = r
		}
	}
	assert.Equal(t, "python", root.Extra["runtime"], "pre-existing extra keys survive")
	meta := root.Extra["metadata"].(map[string]interface{})
	assert.Equal(t, "search", meta["team"], "pre-existing metadata keys survive")
	assert.Equal(t, "A", meta["original_run_id"])

	// The fetched runs themselves must not be mutated.
	srcMeta := in[1].Extra["metadata"].(map[string]interface{})
	_, leaked := srcMeta["copied_from_shared_trace"]
	assert.False(t, leaked, "provenance must not leak into the input")
}

func TestTransformSingleRootDottedOrder(t *testing.T) {
	in := []model.Run{run("A", "", "2023-05-05T05:13:24.571809Z", "")}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)
	require.Len(t, out, 1)

	root := out[0]
	assert.Nil(t, root.ParentRunID)
	assert.Equal(t, *root.ID, *root.TraceID)
	require.NotNil(t, root.DottedOrder)
	assert.Regexp(t, regexp.MustCompile(`^20230505T051324571809Z[0-9a-f]{32}$`), *root.DottedOrder)
}

func TestTransformChildDottedOrderExtendsParent(t *testing.T) {
	in := []model.Run{
		run("A", "", "2023-05-05T05:13:24.571809Z", "x1"),
		run("B", "A", "2023-05-05T05:13:25.100000Z", "x1.x2"),
	}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true, NewID: seqIDs()})
	require.NoError(t, err)
	require.Len(t, out, 2)

	root, child := out[0], out[1]
	require.NotNil(t, child.ParentRunID)
	assert.Equal(t, *root.ID, *child.ParentRunID)

	wantChildPart := "20230505T051325100000Z" + strings.ReplaceAll(*child.ID, "-", "")
	assert.Equal(t, *root.DottedOrder+"."+wantChildPart, *child.DottedOrder)
}

// TestRefreshedTimestampsKeepOriginalDottedOrderClock pins down the behavior
// inherited from the original tooling: with PreserveTimestamps=false the
// visible start_time is rewritten to "now", yet the dotted order still
// encodes the recorded start time, so the copied trace keeps its original
// execution order.
func TestRefreshedTimestampsKeepOriginalDottedOrderClock(t *testing.T) {
	in := []model.Run{run("A", "", "2023-05-05T05:13:24.571809Z", "")}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: false, Now: fixedNow})
	require.NoError(t, err)
	require.Len(t, out, 1)

	root := out[0]
	require.NotNil(t, root.StartTime)
	assert.Equal(t, "2024-03-01T12:00:00.000000Z", *root.StartTime)
	assert.Nil(t, root.EndTime, "end_time is cleared when timestamps are refreshed")
	assert.True(t, strings.HasPrefix(*root.DottedOrder, "20230505T051324571809Z"),
		"dotted order must keep the original clock, got %s", *root.DottedOrder)
}

func TestTransformPreservedTimestampsUntouched(t *testing.T) {
	in := []model.Run{run("A", "", "2023-05-05T05:13:24.571809Z", "")}
	in[0].EndTime = model.StringPtr("2023-05-05T05:13:29.000000Z")

	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true, Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, "2023-05-05T05:13:24.571809Z", *out[0].StartTime)
	assert.Equal(t, "2023-05-05T05:13:29.000000Z", *out[0].EndTime)
}

func TestTransformAcceptsZonelessStartTime(t *testing.T) {
	in := []model.Run{run("A", "", "2023-05-05T05:13:24.571809", "")}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(*out[0].DottedOrder, "20230505T051324571809Z"))
}

func TestTransformMissingStartTimeUsesNow(t *testing.T) {
	in := []model.Run{run("A", "", "", "")}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true, Now: fixedNow})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(*out[0].DottedOrder, "20240301T120000000000Z"))
	assert.Nil(t, out[0].StartTime, "an absent start_time stays absent")
}

func TestTransformRejectsMalformedStartTime(t *testing.T) {
	in := []model.Run{
		run("A", "", "2023-05-05T05:13:24.571809Z", "x1"),
		run("B", "A", "five past noon", "x1.x2"),
	}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.ErrorIs(t, err, ErrBadTimestamp)
	assert.Nil(t, out, "no partial output on malformed timestamps")
}

func TestTransformRejectsEmptyInput(t *testing.T) {
	_, err := Transform(nil, Options{Project: "copies"})
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestTransformRejectsMissingRoot(t *testing.T) {
	in := []model.Run{
		run("B", "A", "2023-05-05T05:13:25.000000Z", "x1.x2"),
		run("C", "B", "2023-05-05T05:13:26.000000Z", "x1.x2.x3"),
	}
	_, err := Transform(in, Options{Project: "copies"})
	// "A" is not part of the collection, so the trace both lacks a root
	// and carries an unresolvable parent reference.
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRoot) || errors.Is(err, ErrUnknownParent))
}

func TestTransformRejectsMultipleRoots(t *testing.T) {
	in := []model.Run{
		run("A", "", "2023-05-05T05:13:24.000000Z", "x1"),
		run("Z", "", "2023-05-05T05:13:25.000000Z", "x2"),
	}
	_, err := Transform(in, Options{Project: "copies"})
	require.ErrorIs(t, err, ErrMultipleRoots)
}

func TestTransformRejectsUnknownParent(t *testing.T) {
	in := []model.Run{
		run("A", "", "2023-05-05T05:13:24.000000Z", "x1"),
		run("B", "ghost", "2023-05-05T05:13:25.000000Z", "x1.x2"),
	}
	_, err := Transform(in, Options{Project: "copies"})
	require.ErrorIs(t, err, ErrUnknownParent)
	assert.Contains(t, err.Error(), "ghost")
}

// TestTransformOrderingInconsistencyFallsBack covers the documented defect
// path: when the input dotted orders contradict the parent links (here the
// child sorts before its parent), the child cannot extend its parent's new
// dotted order and is emitted with a bare one-part dotted order instead.
func TestTransformOrderingInconsistencyFallsBack(t *testing.T) {
	in := []model.Run{
		run("A", "", "2023-05-05T05:13:24.571809Z", "z-sorts-last"),
		run("B", "A", "2023-05-05T05:13:25.100000Z", "a-sorts-first"),
	}
	out, err := Transform(in, Options{Project: "copies", PreserveTimestamps: true})
	require.NoError(t, err)
	require.Len(t, out, 2)

	// The child was processed first and falls back to a single segment.
	child := out[0]
	meta := child.Extra["metadata"].(map[string]interface{})
	require.Equal(t, "B", meta["original_run_id"])
	assert.NotContains(t, *child.DottedOrder, ".",
		"fallback dotted order must be a single segment")
	require.NotNil(t, child.ParentRunID, "the parent link itself is still remapped")
}

func TestTransformDeterministicWithInjectedGenerator(t *testing.T) {
	a, err := Transform(sampleTrace(), Options{Project: "copies", PreserveTimestamps: true, NewID: seqIDs()})
	require.NoError(t, err)
	b, err := Transform(sampleTrace(), Options{Project: "copies", PreserveTimestamps: true, NewID: seqIDs()})
	require.NoError(t, err)
	assert.Equal(t, a, b, "same generator sequence, same output")
}
