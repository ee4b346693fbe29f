package program

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// guideGenerator produces markdown guidance for a workout title using the
// OpenAI API.
type guideGenerator struct {
	client openai.Client
}

func newGuideGenerator(apiKey string) *guideGenerator {
	return &guideGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Generate asks the model for a short coaching guide for the given workout.
func (g *guideGenerator) Generate(ctx context.Context, title string, durationMinutes int) (string, error) {
	prompt := fmt.Sprintf(`You are a running coach. Write a short guide in markdown for a workout called %q lasting %d minutes.

Include these sections:
1. Purpose of the workout
2. How to execute it, including warm-up and cool-down
3. Target effort described by feel and heart rate zone

Keep it under 200 words. Do not add a top-level heading.`, title, durationMinutes)

	chat, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{ //nolint:exhaustruct // defaults are fine.
		Model: openai.ChatModelGPT4o,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no completion choices for workout %q", title)
	}

	markdown := strings.TrimSpace(chat.Choices[0].Message.Content)
	if markdown == "" {
		return "", fmt.Errorf("empty completion for workout %q", title)
	}
	return markdown, nil
}

// staticGuides backs the session page when no OpenAI API key is configured or
// generation fails.
var staticGuides = map[string]string{
	"Aerobic Base": `Run at a comfortable, conversational effort. This builds the aerobic engine that every other workout depends on. Stay relaxed and resist the urge to speed up.`,
	"Tempo Run":    `After a 10 minute warm-up, settle into a comfortably hard effort you could hold for about an hour. Finish with 5 minutes of easy jogging.`,
	"Intervals":    `Warm up for 10 minutes, then alternate 3 minutes hard with 2 minutes of easy jogging. Repeat until the session time is up, leaving 5 minutes to cool down.`,
	"Recovery Run": `Very easy jogging. The pace should feel almost too slow. The point is to move blood through tired legs, not to build fitness.`,
	"Long Run":     `The cornerstone of the week. Run at an easy effort throughout and practice your fueling. Slow down if your form starts to fall apart.`,
}

func staticGuide(title string) string {
	if guide, ok := staticGuides[title]; ok {
		return guide
	}
	return "Run by feel and keep the effort easy unless the plan says otherwise."
}
