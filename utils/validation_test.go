package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type testTranscript struct {
	SessionID string        `json:"sessionId" validate:"required,max=16"`
	Reason    string        `json:"saveReason,omitempty" validate:"omitempty,min=3"`
	Messages  []testMessage `json:"messages" validate:"dive"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testTranscript{
			SessionID: "sess-1",
			Messages:  []testMessage{{Role: "user", Content: "hi"}},
		}
		assert.NoError(t, ValidateStruct(&s))
	})

	tests := []struct {
		name          string
		input         testTranscript
		field         string
		expectMessage string
	}{
		{
			name:          "missing required field",
			input:         testTranscript{},
			field:         "sessionId",
			expectMessage: "sessionId is required",
		},
		{
			name:          "too long",
			input:         testTranscript{SessionID: strings.Repeat("x", 17)},
			field:         "sessionId",
			expectMessage: "sessionId must be at most 16",
		},
		{
			name:          "too short",
			input:         testTranscript{SessionID: "s", Reason: "ab"},
			field:         "saveReason",
			expectMessage: "saveReason must be at least 3",
		},
		{
			name:          "nested role not allowed",
			input:         testTranscript{SessionID: "s", Messages: []testMessage{{Role: "user"}, {Role: "tool"}}},
			field:         "messages[1].role",
			expectMessage: "messages[1].role must be one of: system user assistant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			require.Error(t, err)
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "Validation failed", err.Error())
			assert.Equal(t, tt.expectMessage, GetValidationFields(err)[tt.field])
		})
	}
}

func TestValidateStruct_UntaggedFieldUsesGoName(t *testing.T) {
	type plain struct {
		Name string `validate:"required"`
	}
	err := ValidateStruct(&plain{})
	require.Error(t, err)
	assert.Equal(t, "Name is required", GetValidationFields(err)["Name"])
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	err := ValidateStruct("plain string")
	require.Error(t, err)
	assert.Nil(t, GetValidationFields(err))
}

func TestGetValidationFields(t *testing.T) {
	assert.Nil(t, GetValidationFields(errors.New("other")))
	assert.Nil(t, GetValidationFields(nil))

	err := &ValidationError{Message: "Validation failed", Fields: map[string]string{"a": "b"}}
	assert.Equal(t, map[string]string{"a": "b"}, GetValidationFields(err))
}
