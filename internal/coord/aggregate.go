package coord

import "sort"

// Aggregate merges a set of responses into one outcome. Responses are
// ordered by server id before any math runs, so the same response set
// aggregates identically regardless of arrival order. Quality and
// confidence are means over successful responses only; latency is the
// maximum processing time over every response; the winning payload is
// the successful response with the highest quality x confidence
// weight, ties resolved toward the lower server id.
func Aggregate(requestID string, responses []Response) AggregatedResponse {
	ordered := append([]Response{}, responses...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ServerID < ordered[j].ServerID
	})

	agg := AggregatedResponse{
		RequestID: requestID,
		Weights:   make(map[string]float64, len(ordered)),
		Responses: ordered,
	}

	var qualitySum, confidenceSum float64
	successes := 0
	bestWeight := -1.0
	for _, r := range ordered {
		if r.Metadata.ProcessingTime > agg.Latency {
			agg.Latency = r.Metadata.ProcessingTime
		}
		if !r.Status.Succeeded() {
			continue
		}
		successes++
		qualitySum += r.Metadata.QualityScore
		confidenceSum += r.Metadata.Confidence

		weight := r.Metadata.QualityScore * r.Metadata.Confidence
		agg.Weights[r.ServerID] = weight
		if weight > bestWeight {
			bestWeight = weight
			agg.Result = r.Result
		}
	}

	if successes > 0 {
		agg.Quality = qualitySum / float64(successes)
		agg.Confidence = confidenceSum / float64(successes)
	}
	return agg
}
