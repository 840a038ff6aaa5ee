package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// MergeMasks combines up to three optional boolean masks into a single
// attention mask of shape (batch, seqQ, seqK), where true marks a forbidden
// (padded) pair. Any of the masks may be nil:
//
//   - qMask:    (batch, seqQ) query-side padding, true = padded query row
//   - kvMask:   (batch, seqK) key-side padding, true = padded key column
//   - attnMask: (batch, seqQ, seqK) explicit pairwise mask, true = forbidden
//
// Two padding masks merge as an outer OR: a pair is forbidden when either
// endpoint is padded. A lone padding mask is broadcast across the missing
// axis. The explicit mask is OR-ed into whatever the padding masks produced.
// When all three are nil the result is nil, meaning attend everywhere.
func MergeMasks[B tensor.Backend](
	qMask, kvMask, attnMask *tensor.Tensor[bool, B],
	qShape, kShape tensor.Shape,
) *tensor.Tensor[bool, B] {
	if qMask == nil && kvMask == nil && attnMask == nil {
		return nil
	}

	batch, seqQ, seqK := qShape[0], qShape[1], kShape[1]

	if qMask != nil {
		validateMaskShape("qMask", qMask.Shape(), tensor.Shape{batch, seqQ})
	}
	if kvMask != nil {
		validateMaskShape("kvMask", kvMask.Shape(), tensor.Shape{batch, seqK})
	}
	if attnMask != nil {
		validateMaskShape("attnMask", attnMask.Shape(), tensor.Shape{batch, seqQ, seqK})
	}

	var merged *tensor.Tensor[bool, B]
	switch {
	case qMask != nil && kvMask != nil:
		// Outer OR: (batch, q, 1) | (batch, 1, k) -> (batch, q, k).
		merged = qMask.Unsqueeze(2).Or(kvMask.Unsqueeze(1))
	case kvMask != nil:
		merged = kvMask.Unsqueeze(1).Expand(tensor.Shape{batch, seqQ, seqK})
	case qMask != nil:
		merged = qMask.Unsqueeze(2).Expand(tensor.Shape{batch, seqQ, seqK})
	}

	if attnMask != nil {
		if merged == nil {
			return attnMask
		}
		merged = merged.Or(attnMask)
	}

	return merged
}

func validateMaskShape(name string, got, want tensor.Shape) {
	if !got.Equal(want) {
		panic(fmt.Sprintf("MergeMasks: %s has shape %v, expected %v", name, got, want))
	}
}
