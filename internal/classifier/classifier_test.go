package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	rmodel "github.com/reviewsight/reviewsight/internal/model"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type slowGenerator struct {
	delay time.Duration
	text  string
}

func (g slowGenerator) Generate(ctx context.Context, _ Prompt) (string, error) {
	time.Sleep(g.delay)
	return g.text, nil
}

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, Prompt) (string, error) {
	panic("boom")
}

func alphaReview() rmodel.Review {
	return rmodel.Review{
		ID: "r1", Website: "alpha-shop", Product: "alpha-phone",
		Rating: 1, Feedback: "item broke in two days",
	}
}

const validResponse = "```json\n" + `{
	"user_summary": "The phone broke quickly.",
	"user_suggestions": ["Contact support", "Request a replacement", "", "Keep the receipt", "Check warranty", "Extra"],
	"vendor_summary": "Customer reports early hardware failure.",
	"vendor_suggestions": ["Inspect the batch"],
	"classification": "Product_Issue"
}` + "\n```"

func TestClassify_LLM(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return strings.Contains(p.User, "item broke in two days") && strings.Contains(p.User, "Rating: 1/5")
	})).Return(validResponse, nil).Once()

	insight := New(gen, time.Second).Classify(context.Background(), alphaReview())

	assert.Equal(t, rmodel.SourceLLM, insight.Source)
	assert.Equal(t, rmodel.ClassProductIssue, insight.Classification)
	assert.Equal(t, "The phone broke quickly.", insight.UserSummary)
	assert.Len(t, insight.UserSuggestions, 4)
	assert.Equal(t, []string{"Inspect the batch"}, insight.VendorSuggestions)
	assert.False(t, insight.GeneratedAt.IsZero())
	gen.AssertExpectations(t)
}

func TestClassify_FallbackIsTotal(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"transport error", func() Generator {
			g := &mockGenerator{}
			g.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))
			return g
		}()},
		{"malformed json", func() Generator {
			g := &mockGenerator{}
			g.On("Generate", mock.Anything, mock.Anything).Return("I think it is a product issue.", nil)
			return g
		}()},
		{"unknown classification", func() Generator {
			g := &mockGenerator{}
			g.On("Generate", mock.Anything, mock.Anything).Return(
				`{"user_summary":"a","user_suggestions":["b"],"vendor_summary":"c","vendor_suggestions":["d"],"classification":"angry"}`, nil)
			return g
		}()},
		{"missing suggestions", func() Generator {
			g := &mockGenerator{}
			g.On("Generate", mock.Anything, mock.Anything).Return(
				`{"user_summary":"a","user_suggestions":[],"vendor_summary":"c","vendor_suggestions":["d"],"classification":"other"}`, nil)
			return g
		}()},
		{"timeout", slowGenerator{delay: 200 * time.Millisecond, text: validResponse}},
		{"panic", panicGenerator{}},
		{"no generator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			insight := New(tt.gen, 50*time.Millisecond).Classify(context.Background(), alphaReview())

			assert.Less(t, time.Since(start), 150*time.Millisecond)
			assert.Equal(t, rmodel.SourceHeuristic, insight.Source)
			assert.Equal(t, rmodel.ClassProductIssue, insight.Classification)
			assert.NotEmpty(t, insight.UserSummary)
			assert.NotEmpty(t, insight.UserSuggestions)
			assert.NotEmpty(t, insight.VendorSummary)
			assert.NotEmpty(t, insight.VendorSuggestions)
		})
	}
}

func TestDecodeJSON_SurroundingProse(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, decodeJSON("Sure! Here you go: {\"a\": 3} Hope that helps.", &out))
	assert.Equal(t, 3, out.A)
	assert.ErrorIs(t, decodeJSON("nothing here", &out), errNoJSON)
}

type fakeChatModel struct {
	reply string
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatGenerator(t *testing.T) {
	cm := &fakeChatModel{reply: "{}"}
	gen := NewChatGeneratorWithModel(cm, rate.NewLimiter(rate.Inf, 1))

	text, err := gen.Generate(context.Background(), Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
	require.Len(t, cm.seen, 2)
	assert.Equal(t, schema.System, cm.seen[0].Role)
	assert.Equal(t, "usr", cm.seen[1].Content)

	// an exhausted limiter gives up when the context ends
	slow := NewChatGeneratorWithModel(cm, rate.NewLimiter(rate.Every(time.Hour), 1))
	_, err = slow.Generate(context.Background(), Prompt{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.Generate(ctx, Prompt{})
	assert.Error(t, err)
}
