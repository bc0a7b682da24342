package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"genstudio/internal/models"
)

// Output is what a generator produced for a job.
type Output struct {
	Text     string
	ImageURL string
}

// Generator turns a wizard request into content for a company.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest, company *models.CompanyProfile) (*Output, error)
}

// GeminiGenerator generates text with Gemini. Reference images stored by
// the upload store are sent along with the prompt.
type GeminiGenerator struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	uploads  *UploadStore
	rateChan chan struct{} // Token bucket
	logger   logrus.FieldLogger
}

func NewGeminiGenerator(apiKey, modelName string, concurrentReqs int, uploads *UploadStore, logger logrus.FieldLogger) (*GeminiGenerator, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetTopP(0.95)
	model.SystemInstruction = genai.NewUserContent(genai.Text(
		"You write marketing content for small French businesses. Answer in French unless asked otherwise. " +
			"Return only the requested content, without preamble."))

	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiGenerator{
		client:   client,
		model:    model,
		uploads:  uploads,
		rateChan: rateChan,
		logger:   logger,
	}, nil
}

func (g *GeminiGenerator) Close() {
	g.client.Close()
}

// acquireRate blocks until a rate slot is available
func (g *GeminiGenerator) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (g *GeminiGenerator) releaseRate() {
	g.rateChan <- struct{}{}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req models.GenerationRequest, company *models.CompanyProfile) (*Output, error) {
	if err := g.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer g.releaseRate()

	parts := []genai.Part{genai.Text(buildPrompt(req, company))}
	if req.ReferenceImage != "" && g.uploads != nil {
		if data, format, ok := g.uploads.Load(req.ReferenceImage); ok {
			parts = append(parts, genai.ImageData(format, data))
		} else {
			g.logger.WithField("reference", req.ReferenceImage).Debug("reference image not in upload store, sending prompt only")
		}
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			g.logger.WithFields(logrus.Fields{
				"candidate":     i,
				"finish_reason": cand.FinishReason.String(),
			}).Warn("Gemini stopped early")
		}
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return nil, fmt.Errorf("Gemini returned an empty response")
	}
	return &Output{Text: text}, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// buildPrompt describes the request in layers: business, deliverable, brief.
func buildPrompt(req models.GenerationRequest, company *models.CompanyProfile) string {
	var b strings.Builder

	b.WriteString("Business: ")
	b.WriteString(req.Job)
	if company != nil {
		fmt.Fprintf(&b, " (%s", company.CompanyName)
		if company.Activity != "" {
			fmt.Fprintf(&b, ", %s", company.Activity)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Deliverable: %s\n", req.Function)
	switch req.Category {
	case models.CategoryImage:
		fmt.Fprintf(&b, "Write a detailed visual brief for an illustrator in the %q style: composition, colours, text on the visual.\n", req.Style)
	case models.CategoryDocument:
		b.WriteString("Write the full document with headings, ready to print.\n")
	case models.CategorySocial:
		b.WriteString("Write a social media post with a hook, a short body, a call to action and 3 to 5 hashtags.\n")
	default:
		b.WriteString("Write the text, ready to publish.\n")
	}

	if len(req.WorkflowAnswers) > 0 {
		b.WriteString("Details:\n")
		keys := make([]string, 0, len(req.WorkflowAnswers))
		for k := range req.WorkflowAnswers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.WorkflowAnswers[k])
		}
	}

	if req.ReferenceImage != "" {
		b.WriteString("Use the attached reference image as inspiration.\n")
	}

	fmt.Fprintf(&b, "Request: %s\n", req.Query)
	return b.String()
}

// TemplateGenerator produces deterministic content without an AI backend.
type TemplateGenerator struct{}

func (TemplateGenerator) Generate(ctx context.Context, req models.GenerationRequest, company *models.CompanyProfile) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := req.Job
	if company != nil && company.CompanyName != "" {
		name = company.CompanyName
	}

	var text string
	switch req.Category {
	case models.CategoryImage:
		text = fmt.Sprintf("[%s] %s pour %s, style %s : %s", req.Category, req.Function, name, req.Style, req.Query)
	case models.CategorySocial:
		text = fmt.Sprintf("%s\n\n%s\n\n#%s", req.Query, name, strings.ReplaceAll(strings.ToLower(req.Job), " ", ""))
	default:
		text = fmt.Sprintf("%s - %s\n\n%s", name, req.Function, req.Query)
	}

	out := &Output{Text: text}
	if req.Category == models.CategoryImage {
		out.ImageURL = req.ReferenceImage
	}
	return out, nil
}
