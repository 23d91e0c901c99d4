package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestResponseTextShapes(t *testing.T) {
	_, err := responseText(nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = responseText(&genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	})
	assert.ErrorIs(t, err, ErrBlocked)

	text, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: `{"category":`},
				{Text: `["a"]}`},
			}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"category":["a"]}`, text)

	_, err = responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
