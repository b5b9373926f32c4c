package pipeline

import (
	"strings"

	"taxelev/internal/pattern"
)

type DetectResult struct {
	IsSurvey bool
	Score    float64
	HeadHits int
	ElevHits int
	Reason   string
}

var detectKeywords = []string{"altitude", "elevation", "alt.", "flora", "taxa", "species", "survey", "checklist"}

// DetectSurvey scores whether sanitized text looks like a taxon list with
// elevations. Unattended runs use it to skip unrelated mail.
func DetectSurvey(subject, text string, set *pattern.Set) DetectResult {
	lowerSubject := strings.ToLower(subject)
	lowerText := strings.ToLower(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(lowerSubject, kw) {
			score += 0.1
		}
		if strings.Contains(lowerText, kw) {
			score += 0.05
		}
	}

	heads := 0
	for _, line := range strings.Split(text, "\n") {
		if ok, _ := pattern.Matches(set.Head(), strings.TrimSpace(line)); ok {
			heads++
		}
	}
	elevs, _ := pattern.FindAll(set.Elevation(), text)

	switch {
	case heads >= 3:
		score += 0.4
	case heads >= 1:
		score += 0.2
	}
	switch {
	case len(elevs) >= 3:
		score += 0.4
	case len(elevs) >= 1:
		score += 0.2
	}
	if score > 1 {
		score = 1
	}

	isSurvey := score >= 0.45 && heads > 0 && len(elevs) > 0
	reason := "rules_negative"
	if isSurvey {
		reason = "rules_positive"
	}

	return DetectResult{IsSurvey: isSurvey, Score: score, HeadHits: heads, ElevHits: len(elevs), Reason: reason}
}
