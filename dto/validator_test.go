package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequestValidation(t *testing.T) {
	valid := RegisterRequest{
		Username: "learner1",
		Email:    "learner@example.com",
		Password: "Sup3rSecret",
		SchoolID: "school1",
	}
	assert.NoError(t, valid.Validate())

	weak := valid
	weak.Password = "alllowercase"
	assert.Error(t, weak.Validate())

	noEmail := valid
	noEmail.Email = "not-an-email"
	assert.Error(t, noEmail.Validate())
}

func TestProgressEventRequestValidation(t *testing.T) {
	valid := ProgressEventRequest{ContentID: "c1", Event: "position", Position: 12.5}
	assert.NoError(t, valid.Validate())

	badEvent := ProgressEventRequest{ContentID: "c1", Event: "seeked"}
	assert.Error(t, badEvent.Validate())

	negative := ProgressEventRequest{ContentID: "c1", Event: "position", Position: -1}
	assert.Error(t, negative.Validate())
}

func TestCreateContentRequestValidation(t *testing.T) {
	valid := CreateContentRequest{
		ChapterID:   "ch1",
		Title:       "Intro",
		ContentType: "video",
	}
	assert.NoError(t, valid.Validate())

	badType := valid
	badType.ContentType = "podcast"
	assert.Error(t, badType.Validate())
}

func TestFormatValidationErrors(t *testing.T) {
	err := RegisterRequest{}.Validate()
	require.Error(t, err)

	resp := CreateValidationErrorResponse(err)
	assert.Equal(t, 400, resp.Code)
	assert.NotEmpty(t, resp.Errors)
}
