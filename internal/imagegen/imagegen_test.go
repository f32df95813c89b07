package imagegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/maauso/promptstudio/internal/generator"
)

// A 1x1 PNG.
const pixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8DwHwAFBQIAX8jx0gAAAABJRU5ErkJggg=="

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type mockImageAPI struct {
	mock.Mock
}

func (m *mockImageAPI) GenerateImage(ctx context.Context, model, system string, parts []*genai.Part) ([]byte, error) {
	args := m.Called(ctx, model, system, parts)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func newTestPainter(api imageAPI) *Painter {
	p := NewPainter(WithModel("image-test"))
	p.newAPI = func(context.Context, string) (imageAPI, error) { return api, nil }
	return p
}

func TestPainter_Single(t *testing.T) {
	api := &mockImageAPI{}
	api.On("GenerateImage", mock.Anything, "image-test", keyFrameInstruction, mock.MatchedBy(func(parts []*genai.Part) bool {
		return len(parts) == 1 && strings.Contains(parts[0].Text, "Genre/Style: Western") && strings.Contains(parts[0].Text, "9:16")
	})).Return(pngSignature, nil)

	url, err := newTestPainter(api).Single(context.Background(), "key", SingleInput{
		Script:      "a duel at noon",
		Genre:       "Western",
		AspectRatio: generator.AspectPortrait,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	api.AssertExpectations(t)
}

func TestPainter_Batch(t *testing.T) {
	api := &mockImageAPI{}
	api.On("GenerateImage", mock.Anything, "image-test", consistencyInstruction, mock.MatchedBy(func(parts []*genai.Part) bool {
		return len(parts) == 2 && parts[0].InlineData != nil && parts[0].InlineData.MIMEType == "image/png"
	})).Return(pngSignature, nil)

	var streamed []string
	results, err := newTestPainter(api).Batch(context.Background(), "key", BatchInput{
		Reference: pixelPNG,
		Lines:     []string{"walks in", "", "  sits down  "},
	}, func(r BatchResult) { streamed = append(streamed, r.Prompt) })
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "walks in", results[0].Prompt)
	assert.Equal(t, "sits down", results[1].Prompt)
	assert.Equal(t, []string{"walks in", "sits down"}, streamed)
	api.AssertNumberOfCalls(t, "GenerateImage", 2)
}

func TestPainter_Batch_StopsOnCancel(t *testing.T) {
	api := &mockImageAPI{}
	ctx, cancel := context.WithCancel(context.Background())
	api.On("GenerateImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(pngSignature, nil)

	results, err := newTestPainter(api).Batch(ctx, "key", BatchInput{
		Reference: pixelPNG,
		Lines:     []string{"one", "two", "three"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	api.AssertNumberOfCalls(t, "GenerateImage", 1)
}

func TestPainter_Batch_Errors(t *testing.T) {
	p := newTestPainter(&mockImageAPI{})

	_, err := p.Batch(context.Background(), "key", BatchInput{Reference: pixelPNG, Lines: []string{" "}}, nil)
	assert.ErrorIs(t, err, ErrNoLines)

	_, err = p.Batch(context.Background(), "key", BatchInput{Lines: []string{"a"}}, nil)
	assert.ErrorIs(t, err, ErrNoReference)

	api := &mockImageAPI{}
	api.On("GenerateImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"})
	_, err = newTestPainter(api).Batch(context.Background(), "key", BatchInput{Reference: pixelPNG, Lines: []string{"a"}}, nil)
	assert.True(t, generator.IsCredentialError(err))
}

func TestFirstInlineImage(t *testing.T) {
	_, err := firstInlineImage(nil)
	assert.True(t, errors.Is(err, ErrNoImage))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "here you go"},
			{InlineData: &genai.Blob{Data: []byte("img"), MIMEType: "image/png"}},
		}},
	}}}
	data, err := firstInlineImage(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
}
