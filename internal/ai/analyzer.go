package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"FlowRadar/internal/config"

	"github.com/sashabaranov/go-openai"
)

const promptTemplate = "You are a senior network security analyst. " +
	"Please analyze the following traffic anomaly summary produced by the FlowRadar flow report. " +
	"It lists high-volume flows, sources with an unusually high number of connections and suspected scanners. " +
	"Assess the likely threat behind each finding, its severity, and the recommended next steps for investigation. " +
	"The output should be clear, actionable Markdown.\n\n" +
	"--- Anomaly Summary ---\n%s\n--- End of Anomaly Summary ---"

// ReportAnalyzer asks an OpenAI-compatible model for a security assessment of a report.
type ReportAnalyzer struct {
	cfg    config.AIConfig
	client *openai.Client
}

// NewReportAnalyzer creates a new instance of ReportAnalyzer.
func NewReportAnalyzer(cfg config.AIConfig) (*ReportAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &ReportAnalyzer{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (a *ReportAnalyzer) request(summary string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:     a.cfg.Model,
		MaxTokens: 2048,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(promptTemplate, summary),
			},
		},
		Stream: stream,
	}
}

// AnalyzeTraffic returns the model's assessment of the anomaly summary.
func (a *ReportAnalyzer) AnalyzeTraffic(ctx context.Context, summary string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.request(summary, false))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled by client: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnalyzeStream is AnalyzeTraffic delivering the answer chunk by chunk.
func (a *ReportAnalyzer) AnalyzeStream(ctx context.Context, summary string, sendChunk func(string) error) error {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.request(summary, true))
	if err != nil {
		return fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if err := sendChunk(response.Choices[0].Delta.Content); err != nil {
			return fmt.Errorf("failed to send chunk: %w", err)
		}
	}
}
