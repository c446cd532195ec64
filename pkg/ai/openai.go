package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	classifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "guidance",
		Subsystem: "ai",
		Name:      "classification_duration_seconds",
		Help:      "Duration of moderation oracle requests",
	}, []string{"model"})

	classifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guidance",
		Subsystem: "ai",
		Name:      "classification_failures_total",
		Help:      "Number of moderation oracle requests that produced no usable verdict",
	}, []string{"model", "reason"})
)

const moderationResultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["moderation"],
  "properties": {
    "moderation": {"type": "string", "enum": ["safe", "unsafe"]}
  }
}`

// OpenAIConfig defines configuration options for the OpenAI moderation classifier.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIClassifier implements Classifier against the OpenAI chat completion API.
type OpenAIClassifier struct {
	client *openai.Client
	cfg    OpenAIConfig
	schema *jsonschema.Schema
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIClassifier builds a classifier using the provided configuration.
func NewOpenAIClassifier(cfg OpenAIConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 64
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}

	schema, err := jsonschema.CompileString("moderation_result.json", moderationResultSchema)
	if err != nil {
		return nil, fmt.Errorf("compile moderation schema: %w", err)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		schema: schema,
		tracer: otel.Tracer("github.com/noah-isme/campus-guidance-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_classifier").Logger(),
	}, nil
}

// Classify asks the model for a verdict. Transport failures and replies that do not match the
// result schema, including values outside "safe" and "unsafe", return ErrClassifierUnavailable.
// A provider content filter is reported as unsafe.
func (c *OpenAIClassifier) Classify(parent context.Context, text string) (Verdict, error) {
	ctx, span := c.tracer.Start(parent, "openai.classify", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.Int("text.length", len(text)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: moderationSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Message: " + text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	classifyDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(span, "transport", fmt.Errorf("%w: %v", ErrClassifierUnavailable, err))
	}

	if len(resp.Choices) == 0 {
		return c.fail(span, "empty", fmt.Errorf("%w: no choices returned", ErrClassifierUnavailable))
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		span.SetAttributes(attribute.String("verdict", string(VerdictUnsafe)))
		return VerdictUnsafe, nil
	}

	verdict, err := c.parseVerdict(strings.TrimSpace(choice.Message.Content))
	if err != nil {
		return c.fail(span, "malformed", err)
	}

	span.SetAttributes(attribute.String("verdict", string(verdict)))
	return verdict, nil
}

func (c *OpenAIClassifier) fail(span trace.Span, reason string, err error) (Verdict, error) {
	classifyFailures.WithLabelValues(c.cfg.Model, reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn().Err(err).Str("reason", reason).Msg("moderation oracle returned no usable verdict")
	return VerdictUnsafe, err
}

func (c *OpenAIClassifier) parseVerdict(content string) (Verdict, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return VerdictUnsafe, fmt.Errorf("%w: parse moderation json: %v", ErrClassifierUnavailable, err)
	}

	if err := c.schema.Validate(raw); err != nil {
		return VerdictUnsafe, fmt.Errorf("%w: unexpected moderation shape: %v", ErrClassifierUnavailable, err)
	}

	value, _ := raw.(map[string]interface{})["moderation"].(string)
	switch Verdict(value) {
	case VerdictSafe:
		return VerdictSafe, nil
	case VerdictUnsafe:
		return VerdictUnsafe, nil
	default:
		return VerdictUnsafe, fmt.Errorf("%w: unexpected moderation value %q", ErrClassifierUnavailable, value)
	}
}

func moderationSystemPrompt() string {
	return "You are a moderation bot for an academic platform. Decide whether the user's message is safe or unsafe.\n" +
		"A message is safe only if all of the following hold:\n" +
		"1. It contains no harmful, offensive or inappropriate content (hate speech, slurs, harassment, explicit material).\n" +
		"2. It is not random, meaningless or spam-like text.\n" +
		"3. It relates to academic or educational topics: study doubts, educational guidance or opinions, college inquiries, " +
		"academic subjects, education-related career guidance, study methods.\n" +
		"4. Negative or critical sentiment is fine when expressed constructively.\n" +
		"Otherwise the message is unsafe.\n" +
		`Respond with a JSON object of the form {"moderation": "safe"} or {"moderation": "unsafe"} and nothing else.`
}
