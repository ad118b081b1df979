package types

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ArchiveRecord is the cold-storage form of a forgotten memory: a gzip
// payload of the exact original content plus the single-item compression
// summary produced before archival. The original memory is never deleted,
// only flagged archived with a reference to this record.
type ArchiveRecord struct {
	OriginalHash string             `json:"original_hash"`
	Payload      []byte             `json:"payload"` // gzip of the original content bytes
	Summary      *CompressedSummary `json:"summary,omitempty"`
	ArchivedAt   time.Time          `json:"archived_at"`
	Horizon      Horizon            `json:"archived_from_horizon"`
	Reason       ArchiveReason      `json:"reason"`
}

// Meta keys used by Memory-shaped archive records.
const (
	metaOriginalHash = "original_hash"
	metaReason       = "reason"
	metaArchivedAt   = "archived_at"
)

// CompressPayload gzips content for an archive record.
func CompressPayload(content string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Recover decompresses the payload back to the exact original content.
func (r *ArchiveRecord) Recover() (string, error) {
	zr, err := gzip.NewReader(bytes.NewReader(r.Payload))
	if err != nil {
		return "", fmt.Errorf("recover %s: %w", r.OriginalHash, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("recover %s: %w", r.OriginalHash, err)
	}
	return string(data), nil
}

// RecordHash returns the hash this archive record persists under. One
// archive record exists per original hash, so a retried archival after a
// partial failure upserts the same record instead of duplicating it.
func (r *ArchiveRecord) RecordHash() string {
	return recordHash("archive", r.OriginalHash)
}

// Record converts the archive record into its Memory-shaped persistence
// form. The payload travels base64-encoded in the content field.
func (r *ArchiveRecord) Record() *Memory {
	meta := map[string]string{
		metaOriginalHash: r.OriginalHash,
		metaReason:       string(r.Reason),
		metaHorizon:      string(r.Horizon),
		metaArchivedAt:   r.ArchivedAt.UTC().Format(time.RFC3339Nano),
	}
	importance := 0.0
	var embedding []float64
	if r.Summary != nil {
		meta[metaKeywords] = EncodeKeywords(r.Summary.Keywords)
		importance = r.Summary.MaxMemberImportance
		embedding = r.Summary.Centroid
	}
	return &Memory{
		Hash:           r.RecordHash(),
		Content:        base64.StdEncoding.EncodeToString(r.Payload),
		Embedding:      embedding,
		Type:           TypeArchive,
		Importance:     importance,
		Relevance:      importance,
		Tags:           []string{TagArchive, string(r.Reason), string(r.Horizon)},
		Meta:           meta,
		CreatedAt:      r.ArchivedAt,
		LastAccessedAt: r.ArchivedAt,
	}
}

// ArchiveFromRecord reconstructs an ArchiveRecord from its Memory-shaped
// persistence form.
func ArchiveFromRecord(m *Memory) (*ArchiveRecord, error) {
	if m == nil {
		return nil, fmt.Errorf("archive record is nil")
	}
	if m.Type != TypeArchive {
		return nil, fmt.Errorf("record %s has type %q, not %q", m.Hash, m.Type, TypeArchive)
	}
	orig, ok := m.Meta[metaOriginalHash]
	if !ok {
		return nil, fmt.Errorf("archive record %s missing %s", m.Hash, metaOriginalHash)
	}
	payload, err := base64.StdEncoding.DecodeString(m.Content)
	if err != nil {
		return nil, fmt.Errorf("archive record %s has bad payload: %w", m.Hash, err)
	}
	archivedAt, _ := time.Parse(time.RFC3339Nano, m.Meta[metaArchivedAt])
	rec := &ArchiveRecord{
		OriginalHash: orig,
		Payload:      payload,
		ArchivedAt:   archivedAt,
		Horizon:      Horizon(m.Meta[metaHorizon]),
		Reason:       ArchiveReason(m.Meta[metaReason]),
	}
	if kws := m.Meta[metaKeywords]; kws != "" {
		rec.Summary = &CompressedSummary{
			RepresentativeHash:  orig,
			Keywords:            DecodeKeywords(kws),
			MemberHashes:        []string{orig},
			Centroid:            m.Embedding,
			MaxMemberImportance: m.Importance,
		}
	}
	return rec, nil
}
