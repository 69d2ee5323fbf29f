package interactive

import "liveclass-service/internal/domain"

// Tally counts votes per option. Only the earliest response of each student counts,
// so the result does not depend on arrival order.
func Tally(responses []domain.Response) domain.VoteDistribution {
	dist := domain.VoteDistribution{}
	for _, r := range firstPerStudent(responses) {
		dist[r.OptionID]++
	}
	return dist
}

// Summarize computes totals and correct answers for one slide.
func Summarize(sessionID, slideID string, responses []domain.Response) domain.SlideResults {
	results := domain.SlideResults{
		SessionID:    sessionID,
		SlideID:      slideID,
		Distribution: domain.VoteDistribution{},
	}
	for _, r := range firstPerStudent(responses) {
		results.Total++
		results.Distribution[r.OptionID]++
		if r.IsCorrect != nil && *r.IsCorrect {
			results.Correct++
		}
	}
	return results
}

func firstPerStudent(responses []domain.Response) map[string]domain.Response {
	first := make(map[string]domain.Response, len(responses))
	for _, r := range responses {
		prev, ok := first[r.StudentID]
		if !ok || earlier(r, prev) {
			first[r.StudentID] = r
		}
	}
	return first
}

func earlier(a, b domain.Response) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
