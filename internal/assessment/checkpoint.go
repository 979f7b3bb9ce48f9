package assessment

import "github.com/ashureev/selve/internal/domain"

// ResolveCheckpoint returns the checkpoint to show before next, or nil.
// A checkpoint is surfaced only when next is the first question (by order)
// of its section, and then it is the section's lowest-order checkpoint.
func ResolveCheckpoint(questions []*domain.Question, checkpoints []*domain.Checkpoint, next *domain.Question) *domain.Checkpoint {
	if next == nil {
		return nil
	}
	for _, q := range questions {
		if q.SectionID != next.SectionID || q.ID == next.ID {
			continue
		}
		if q.Order < next.Order || (q.Order == next.Order && q.ID < next.ID) {
			return nil
		}
	}

	var best *domain.Checkpoint
	for _, cp := range checkpoints {
		if cp.SectionID != next.SectionID {
			continue
		}
		if best == nil || cp.Order < best.Order || (cp.Order == best.Order && cp.ID < best.ID) {
			best = cp
		}
	}
	return best
}
