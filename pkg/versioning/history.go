package versioning

import (
	"context"
	"fmt"
	"time"

	"github.com/wI2L/jsondiff"
)

const timeFormat = time.RFC3339

// VersionHistoryService produces the read-side view of an event's version
// timeline and computes which version is current.
type VersionHistoryService struct {
	store *VersionStore
}

// NewVersionHistoryService creates a history service.
func NewVersionHistoryService(store *VersionStore) *VersionHistoryService {
	return &VersionHistoryService{store: store}
}

// Timeline returns the event's versions newest first, each tagged with a
// derived isCurrent flag. Only the ACTIVE entry is current.
func (h *VersionHistoryService) Timeline(ctx context.Context, eventNo string, pageSize int, pageToken string) (*TimelineResponse, error) {
	records, nextToken, total, err := h.store.ListByEvent(ctx, eventNo, pageSize, pageToken)
	if err != nil {
		return nil, err
	}

	summaries := make([]VersionSummary, len(records))
	for i, rec := range records {
		summaries[i] = summarize(rec)
	}

	return &TimelineResponse{
		EventNo:       eventNo,
		Versions:      summaries,
		NextPageToken: nextToken,
		TotalSize:     total,
	}, nil
}

// DiffSummary computes a per-section structural diff between two versions.
// Read-only: neither version is mutated. Sections present in only one
// version are reported as added/removed; sections present in both are
// compared structurally and reported with the number of differing
// operations.
func (h *VersionHistoryService) DiffSummary(ctx context.Context, idA, idB string) (*DiffResponse, error) {
	a, err := h.store.Get(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := h.store.Get(ctx, idB)
	if err != nil {
		return nil, err
	}

	resp := &DiffResponse{VersionA: idA, VersionB: idB}
	for _, section := range Sections {
		blobA, inA := a.Payload[section]
		blobB, inB := b.Payload[section]
		switch {
		case !inA && !inB:
			continue
		case !inA:
			resp.Sections = append(resp.Sections, SectionDiff{Section: section, Change: "added"})
		case !inB:
			resp.Sections = append(resp.Sections, SectionDiff{Section: section, Change: "removed"})
		default:
			patch, err := jsondiff.CompareJSON(blobA, blobB)
			if err != nil {
				return nil, fmt.Errorf("diff section %s: %w", section, err)
			}
			if len(patch) > 0 {
				resp.Sections = append(resp.Sections, SectionDiff{Section: section, Change: "changed", Ops: len(patch)})
			}
		}
	}
	return resp, nil
}

// summarize converts a record to its timeline entry.
func summarize(rec EventVersionRecord) VersionSummary {
	summary := VersionSummary{
		ID:             rec.ID,
		EventNo:        rec.EventNo,
		VersionCode:    rec.VersionCode,
		VersionDesc:    rec.VersionDesc,
		Status:         rec.Status,
		IsCurrent:      rec.Status == StatusActive,
		CreatedBy:      rec.CreatedBy,
		CreatedAt:      rec.CreatedAt.Format(timeFormat),
		LastModifiedBy: rec.LastModifiedBy,
	}
	if rec.PublishedAt != nil {
		summary.PublishedAt = rec.PublishedAt.Format(timeFormat)
	}
	return summary
}
