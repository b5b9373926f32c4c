package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"taxelev/internal/pattern"
)

func TestDetectSurveyPositive(t *testing.T) {
	text := "Genus alpha Author1 & Author2\n1200-1500 m\nGenus beta (Sect.) Author3\n800 m"
	res := DetectSurvey("Alpine flora", text, pattern.Base())

	assert.True(t, res.IsSurvey)
	assert.Equal(t, 2, res.HeadHits)
	assert.Equal(t, 2, res.ElevHits)
	assert.Equal(t, "rules_positive", res.Reason)
	assert.GreaterOrEqual(t, res.Score, 0.45)
}

func TestDetectSurveyNegative(t *testing.T) {
	res := DetectSurvey("Meeting notes", "See you at the station at 10.\nBring boots.", pattern.Base())
	assert.False(t, res.IsSurvey)
	assert.Zero(t, res.HeadHits)
	assert.Equal(t, "rules_negative", res.Reason)
}

func TestDetectSurveyNeedsElevations(t *testing.T) {
	text := "Genus alpha Author1\nGenus beta Author2\nGenus gamma Author3\nflora survey checklist species"
	res := DetectSurvey("Flora survey", text, pattern.Base())
	assert.False(t, res.IsSurvey)
	assert.Equal(t, 3, res.HeadHits)
	assert.Zero(t, res.ElevHits)
}
