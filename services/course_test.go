package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/shared"
)

func quizContent(t *testing.T, questions []model.Question) *model.ContentItem {
	t.Helper()
	raw, err := json.Marshal(questions)
	require.NoError(t, err)
	return &model.ContentItem{
		ID:          "quiz1",
		ContentType: shared.ContentTypeQuiz,
		Questions:   raw,
	}
}

func TestValidateQuizAnswers_AllCorrect(t *testing.T) {
	svc := &CourseService{}
	content := quizContent(t, []model.Question{
		{ID: "q1", Type: "multiple_choice", Answer: "Paris", Points: 10},
		{ID: "q2", Type: "fill_blank", Answer: "blue", Points: 10},
	})

	score, total, passed, err := svc.ValidateQuizAnswers(content, map[string]interface{}{
		"q1": "Paris",
		"q2": "  BLUE ",
	})

	require.NoError(t, err)
	assert.Equal(t, 100, score)
	assert.Equal(t, 20, total)
	assert.True(t, passed)
}

func TestValidateQuizAnswers_BelowPassThreshold(t *testing.T) {
	svc := &CourseService{}
	content := quizContent(t, []model.Question{
		{ID: "q1", Type: "multiple_choice", Answer: "a", Points: 10},
		{ID: "q2", Type: "multiple_choice", Answer: "b", Points: 10},
	})

	score, _, passed, err := svc.ValidateQuizAnswers(content, map[string]interface{}{
		"q1": "a",
		"q2": "wrong",
	})

	require.NoError(t, err)
	assert.Equal(t, 50, score)
	assert.False(t, passed)
}

func TestValidateQuizAnswers_MissingAnswersScoreZero(t *testing.T) {
	svc := &CourseService{}
	content := quizContent(t, []model.Question{
		{ID: "q1", Type: "multiple_choice", Answer: "a", Points: 5},
	})

	score, _, passed, err := svc.ValidateQuizAnswers(content, map[string]interface{}{})

	require.NoError(t, err)
	assert.Equal(t, 0, score)
	assert.False(t, passed)
}

func TestValidateQuizAnswers_NoQuestionsPassesTrivially(t *testing.T) {
	svc := &CourseService{}
	content := quizContent(t, []model.Question{})

	score, total, passed, err := svc.ValidateQuizAnswers(content, nil)

	require.NoError(t, err)
	assert.Equal(t, 100, score)
	assert.Equal(t, 0, total)
	assert.True(t, passed)
}

func TestValidateQuizAnswers_MalformedQuestions(t *testing.T) {
	svc := &CourseService{}
	content := &model.ContentItem{
		ID:          "quiz1",
		ContentType: shared.ContentTypeQuiz,
		Questions:   json.RawMessage(`not-json`),
	}

	_, _, _, err := svc.ValidateQuizAnswers(content, nil)
	assert.Error(t, err)
}
