// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/tuhinmallick/grounded-sam-replicate/common"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap threshold for suppression.
	ClassAware   bool    // If true, suppress only within the same label.
}

// SortByConfidence orders detections by descending confidence. Ties keep
// their original order.
func SortByConfidence(detections []common.BoundingBox) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: The suppression threshold and class awareness.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []common.BoundingBox, config *NMSConfig) []common.BoundingBox {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]common.BoundingBox, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Label != detections[j].Label {
				continue
			}

			// Suppress if IoU exceeds threshold
			if anchor.IoU(&detections[j]) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
