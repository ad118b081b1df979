package types_test

import (
	"strings"
	"testing"
	"time"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// TestPairKeyCanonical verifies that pair keys are order-independent.
func TestPairKeyCanonical(t *testing.T) {
	if types.PairKey("abc", "xyz") != types.PairKey("xyz", "abc") {
		t.Errorf("expected identical pair keys for swapped arguments")
	}
	if got := types.PairKey("b", "a"); got != "a|b" {
		t.Errorf("expected pair key %q, got %q", "a|b", got)
	}
}

// TestClassifySimilarity verifies the fixed classification thresholds,
// including values sitting exactly on a boundary.
func TestClassifySimilarity(t *testing.T) {
	tests := []struct {
		sim  float64
		want types.ConnectionClass
	}{
		{0.65, types.ClassStrongConceptual},
		{0.61, types.ClassStrongConceptual},
		{0.60, types.ClassModerateThematic}, // boundary is exclusive
		{0.55, types.ClassModerateThematic},
		{0.50, types.ClassSubtlePattern},
		{0.45, types.ClassSubtlePattern},
		{0.40, types.ClassCreativeLeap},
		{0.31, types.ClassCreativeLeap},
	}
	for _, tt := range tests {
		if got := types.ClassifySimilarity(tt.sim); got != tt.want {
			t.Errorf("ClassifySimilarity(%v) = %q, want %q", tt.sim, got, tt.want)
		}
	}
}

// TestAssociationRecordRoundTrip verifies that an association survives
// conversion to its Memory-shaped record and back.
func TestAssociationRecordRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assoc := &types.Association{
		SourceHash: "aaa",
		TargetHash: "bbb",
		Similarity: 0.4567,
		Class:      types.ClassSubtlePattern,
		Horizon:    types.HorizonWeekly,
		Tags:       []string{"notes", types.TagAssociation, types.TagDiscovery, "weekly"},
		Embedding:  []float64{0.1, 0.2, 0.3},
		Importance: 0.55,
		CreatedAt:  created,
	}

	rec := assoc.Record()
	if rec.Type != types.TypeAssociation {
		t.Fatalf("expected record type %q, got %q", types.TypeAssociation, rec.Type)
	}
	if rec.Hash != types.AssociationRecordHash("aaa|bbb") {
		t.Errorf("expected record hash to derive from the pair key")
	}

	back, err := types.AssociationFromRecord(rec)
	if err != nil {
		t.Fatalf("AssociationFromRecord: %v", err)
	}
	if back.SourceHash != "aaa" || back.TargetHash != "bbb" {
		t.Errorf("expected pair (aaa, bbb), got (%s, %s)", back.SourceHash, back.TargetHash)
	}
	if back.Similarity != 0.4567 {
		t.Errorf("expected similarity 0.4567, got %v", back.Similarity)
	}
	if back.Class != types.ClassSubtlePattern {
		t.Errorf("expected class %q, got %q", types.ClassSubtlePattern, back.Class)
	}
	if back.Horizon != types.HorizonWeekly {
		t.Errorf("expected horizon %q, got %q", types.HorizonWeekly, back.Horizon)
	}
}

// TestAssociationRecordHashStable verifies that swapped endpoints produce
// the same record hash, which is what makes re-discovery idempotent.
func TestAssociationRecordHashStable(t *testing.T) {
	a := &types.Association{SourceHash: "m1", TargetHash: "m2"}
	b := &types.Association{SourceHash: "m2", TargetHash: "m1"}
	if a.Record().Hash != b.Record().Hash {
		t.Errorf("expected identical record hashes for the same unordered pair")
	}
}

// TestSummaryRecordRoundTrip verifies summary record conversion, the
// compressed-cluster tag, and member traceability.
func TestSummaryRecordRoundTrip(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sum := &types.CompressedSummary{
		RepresentativeHash:  "rep",
		Keywords:            []types.Keyword{{Term: "kernel", Count: 9}, {Term: "scheduler", Count: 4}},
		MemberHashes:        []string{"m1", "m2", "m3", "m4", "m5"},
		Range:               types.TemporalRange{From: from, To: to},
		AggregateTags:       []string{"linux", "notes"},
		CompressionRatio:    5,
		Centroid:            []float64{0.5, 0.5},
		Horizon:             types.HorizonMonthly,
		CreatedAt:           to,
		MaxMemberImportance: 0.9,
	}

	rec := sum.Record()
	if rec.Type != types.TypeSummary {
		t.Fatalf("expected record type %q, got %q", types.TypeSummary, rec.Type)
	}
	if !rec.HasTag(types.TagCompressedCluster) {
		t.Errorf("expected record to carry tag %q", types.TagCompressedCluster)
	}
	if rec.Importance != 0.9 {
		t.Errorf("expected importance 0.9, got %v", rec.Importance)
	}

	back, err := types.SummaryFromRecord(rec)
	if err != nil {
		t.Fatalf("SummaryFromRecord: %v", err)
	}
	if back.RepresentativeHash != "rep" {
		t.Errorf("expected representative %q, got %q", "rep", back.RepresentativeHash)
	}
	if len(back.MemberHashes) != 5 {
		t.Fatalf("expected 5 member hashes, got %d", len(back.MemberHashes))
	}
	if !back.Range.From.Equal(from) || !back.Range.To.Equal(to) {
		t.Errorf("expected temporal range (%v, %v), got (%v, %v)", from, to, back.Range.From, back.Range.To)
	}
	if len(back.Keywords) != 2 || back.Keywords[0].Term != "kernel" || back.Keywords[0].Count != 9 {
		t.Errorf("expected keywords to survive the round trip, got %+v", back.Keywords)
	}
}

// TestKeywordCodec verifies the keyword encoding and that malformed entries
// are dropped on decode instead of failing the list.
func TestKeywordCodec(t *testing.T) {
	encoded := types.EncodeKeywords([]types.Keyword{{Term: "alpha", Count: 3}, {Term: "beta", Count: 1}})
	if encoded != "alpha:3,beta:1" {
		t.Errorf("unexpected encoding %q", encoded)
	}

	decoded := types.DecodeKeywords("alpha:3,garbage,beta:1,:5,gamma:x")
	if len(decoded) != 2 {
		t.Fatalf("expected 2 decoded keywords, got %d (%+v)", len(decoded), decoded)
	}
	if decoded[0].Term != "alpha" || decoded[1].Term != "beta" {
		t.Errorf("unexpected decoded keywords %+v", decoded)
	}
}

// TestArchivePayloadRoundTrip verifies that archived content is
// byte-recoverable through the gzip payload.
func TestArchivePayloadRoundTrip(t *testing.T) {
	content := "original content, including unicode: héllo wörld — 記憶\nand a second line"
	payload, err := types.CompressPayload(content)
	if err != nil {
		t.Fatalf("CompressPayload: %v", err)
	}

	rec := &types.ArchiveRecord{
		OriginalHash: "orig",
		Payload:      payload,
		ArchivedAt:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Horizon:      types.HorizonMonthly,
		Reason:       types.ReasonStaleAccess,
	}
	got, err := rec.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got != content {
		t.Errorf("recovered content does not match original")
	}
}

// TestArchiveRecordRoundTrip verifies the Memory-shaped archive form keeps
// the payload recoverable and the metadata intact.
func TestArchiveRecordRoundTrip(t *testing.T) {
	content := strings.Repeat("memory body ", 50)
	payload, err := types.CompressPayload(content)
	if err != nil {
		t.Fatalf("CompressPayload: %v", err)
	}
	rec := &types.ArchiveRecord{
		OriginalHash: "orig-hash",
		Payload:      payload,
		Summary: &types.CompressedSummary{
			RepresentativeHash:  "orig-hash",
			Keywords:            []types.Keyword{{Term: "memory", Count: 50}},
			MemberHashes:        []string{"orig-hash"},
			MaxMemberImportance: 0.2,
		},
		ArchivedAt: time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC),
		Horizon:    types.HorizonYearly,
		Reason:     types.ReasonRelevanceThreshold,
	}

	mem := rec.Record()
	if mem.Type != types.TypeArchive {
		t.Fatalf("expected record type %q, got %q", types.TypeArchive, mem.Type)
	}
	if !mem.HasTag(types.TagArchive) {
		t.Errorf("expected archive tag on record")
	}

	back, err := types.ArchiveFromRecord(mem)
	if err != nil {
		t.Fatalf("ArchiveFromRecord: %v", err)
	}
	if back.OriginalHash != "orig-hash" {
		t.Errorf("expected original hash %q, got %q", "orig-hash", back.OriginalHash)
	}
	if back.Reason != types.ReasonRelevanceThreshold {
		t.Errorf("expected reason %q, got %q", types.ReasonRelevanceThreshold, back.Reason)
	}
	recovered, err := back.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered != content {
		t.Errorf("recovered content does not match original")
	}
}

// TestParseHorizon verifies parsing of valid and unknown horizon names.
func TestParseHorizon(t *testing.T) {
	for _, h := range types.AllHorizons {
		parsed, err := types.ParseHorizon(string(h))
		if err != nil {
			t.Errorf("ParseHorizon(%q) returned error: %v", h, err)
		}
		if parsed != h {
			t.Errorf("ParseHorizon(%q) = %q", h, parsed)
		}
	}
	if _, err := types.ParseHorizon("hourly"); err == nil {
		t.Errorf("expected error for unknown horizon")
	}
}

// TestMemoryHelpers verifies the tag and connection helpers.
func TestMemoryHelpers(t *testing.T) {
	m := &types.Memory{
		Tags:        []string{"notes", "reference"},
		Connections: []string{"peer-1"},
	}
	if !m.HasTag("reference") {
		t.Errorf("expected HasTag(reference) to be true")
	}
	if m.HasTag("missing") {
		t.Errorf("expected HasTag(missing) to be false")
	}
	if !m.HasAnyTag([]string{"x", "reference"}) {
		t.Errorf("expected HasAnyTag to find reference")
	}
	if m.HasAnyTag([]string{"x", "y"}) {
		t.Errorf("expected HasAnyTag to find nothing")
	}
	if !m.HasConnection("peer-1") || m.HasConnection("peer-2") {
		t.Errorf("unexpected connection membership")
	}
}

// TestMemoryAgeClamping verifies age calculations never go negative and that
// access staleness falls back to the creation time.
func TestMemoryAgeClamping(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &types.Memory{CreatedAt: now.Add(48 * time.Hour)} // created "in the future"
	if got := m.AgeDays(now); got != 0 {
		t.Errorf("expected clamped age 0, got %v", got)
	}

	m2 := &types.Memory{CreatedAt: now.Add(-10 * 24 * time.Hour)}
	if got := m2.DaysSinceAccess(now); got != 10 {
		t.Errorf("expected access staleness 10 days via CreatedAt fallback, got %v", got)
	}
}
