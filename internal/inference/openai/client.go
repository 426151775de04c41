package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"

	"github.com/Gidwell/jiro/internal/inference"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	httpClient       *resty.Client
	model            string
	maxRetryAttempts uint
}

type Option func(*Client)

// WithBaseURL points the client at another OpenAI compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(client *Client) {
		if baseURL != "" {
			client.httpClient.SetBaseURL(baseURL)
		}
	}
}

func NewClient(apiKey, model string, retryAttempts uint, opts ...Option) *Client {
	httpClient := resty.New()
	httpClient.SetBaseURL(defaultBaseURL)
	httpClient.SetHeader("Authorization", "Bearer "+apiKey)
	httpClient.SetHeader("Content-Type", "application/json")
	httpClient.SetTimeout(60 * time.Second)

	client := &Client{
		httpClient:       httpClient,
		model:            model,
		maxRetryAttempts: retryAttempts,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

// GetModel returns the model name configured for this client
func (client *Client) GetModel() string {
	return client.model
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

var jsonObjectFormat = &ResponseFormat{Type: "json_object"}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ChoiceMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generate implements the inference.Client interface
func (client *Client) Generate(ctx context.Context, conversation inference.ConversationContext) (inference.Reply, error) {
	var result inference.Reply
	err := client.withRetry(ctx, func() error {
		reply, err := client.generate(ctx, conversation)
		if err != nil {
			return err
		}
		result = reply
		return nil
	})
	return result, err
}

func (client *Client) generate(ctx context.Context, conversation inference.ConversationContext) (inference.Reply, error) {
	systemPrompt, err := coachPrompt(conversation)
	if err != nil {
		return inference.Reply{}, fmt.Errorf("coachPrompt > %w", err)
	}

	messages := []Message{{Role: RoleSystem, Content: systemPrompt}}
	for _, turn := range conversation.RecentTurns {
		messages = append(messages,
			Message{Role: RoleUser, Content: turn.Transcript},
			Message{Role: RoleAssistant, Content: turn.Reply},
		)
	}
	messages = append(messages, Message{Role: RoleUser, Content: conversation.Transcript})

	content, err := client.complete(ctx, ChatCompletionRequest{
		Model:          client.model,
		Messages:       messages,
		Temperature:    0.7,
		ResponseFormat: jsonObjectFormat,
	})
	if err != nil {
		return inference.Reply{}, err
	}

	var reply inference.Reply
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &reply); err != nil {
		return inference.Reply{}, fmt.Errorf("json.Unmarshal(%s) > %w", content, err)
	}
	if strings.TrimSpace(reply.Text) == "" {
		return inference.Reply{}, fmt.Errorf("reply is empty: %s", content)
	}
	reply.Assessments = knownAssessments(reply.Assessments, conversation.DueItems)
	return reply, nil
}

// knownAssessments drops assessments of items that were not offered.
func knownAssessments(assessments []inference.Assessment, offered []inference.DueItem) []inference.Assessment {
	ids := make(map[string]bool, len(offered))
	for _, item := range offered {
		ids[item.ID] = true
	}
	kept := make([]inference.Assessment, 0, len(assessments))
	seen := make(map[string]bool, len(assessments))
	for _, a := range assessments {
		if !ids[a.ItemID] || seen[a.ItemID] {
			continue
		}
		seen[a.ItemID] = true
		kept = append(kept, a)
	}
	return kept
}

// Summarize implements the inference.Client interface
func (client *Client) Summarize(ctx context.Context, request inference.SummaryRequest) (string, error) {
	var result string
	err := client.withRetry(ctx, func() error {
		summary, err := client.summarize(ctx, request)
		if err != nil {
			return err
		}
		result = summary
		return nil
	})
	return result, err
}

func (client *Client) summarize(ctx context.Context, request inference.SummaryRequest) (string, error) {
	turns, err := json.Marshal(request.Turns)
	if err != nil {
		return "", fmt.Errorf("json.Marshal > %w", err)
	}
	userMessage := fmt.Sprintf("## Current Summary\n%s\n\n## New Turns\n%s", request.Current, turns)

	content, err := client.complete(ctx, ChatCompletionRequest{
		Model:       client.model,
		Temperature: 0.2,
		Messages: []Message{
			{Role: RoleSystem, Content: summaryPrompt},
			{Role: RoleUser, Content: userMessage},
		},
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(content)
	if len([]rune(summary)) > maxSummaryRunes {
		summary = string([]rune(summary)[:maxSummaryRunes])
	}
	return summary, nil
}

// GenerateItems implements the inference.Client interface
func (client *Client) GenerateItems(ctx context.Context, state inference.CurriculumState) ([]inference.GeneratedItem, error) {
	if state.Count <= 0 {
		return nil, nil
	}
	var result []inference.GeneratedItem
	err := client.withRetry(ctx, func() error {
		items, err := client.generateItems(ctx, state)
		if err != nil {
			return err
		}
		result = items
		return nil
	})
	return result, err
}

func (client *Client) generateItems(ctx context.Context, state inference.CurriculumState) ([]inference.GeneratedItem, error) {
	body, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal > %w", err)
	}

	content, err := client.complete(ctx, ChatCompletionRequest{
		Model:          client.model,
		Temperature:    0.8,
		ResponseFormat: jsonObjectFormat,
		Messages: []Message{
			{Role: RoleSystem, Content: itemsPrompt},
			{Role: RoleUser, Content: string(body)},
		},
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Items []inference.GeneratedItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &decoded); err != nil {
		return nil, fmt.Errorf("json.Unmarshal(%s) > %w", content, err)
	}
	if len(decoded.Items) > state.Count {
		decoded.Items = decoded.Items[:state.Count]
	}
	return decoded.Items, nil
}

func (client *Client) complete(ctx context.Context, requestBody ChatCompletionRequest) (string, error) {
	response, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		SetResult(&ChatCompletionResponse{}).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("httpClient.Post > %w", err)
	}
	if response.IsError() {
		return "", fmt.Errorf("response error %d: %s", response.StatusCode(), response.String())
	}

	responseBody := response.Result().(*ChatCompletionResponse)
	if responseBody == nil || len(responseBody.Choices) == 0 {
		return "", fmt.Errorf("empty response body or choices: %s", response.String())
	}

	content := responseBody.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response content: %s", response.String())
	}
	slog.Default().Debug("openai response content",
		"model", responseBody.Model,
		"totalTokens", responseBody.Usage.TotalTokens,
	)
	return content, nil
}

func (client *Client) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		func() error {
			err := fn()
			if err != nil && !isRetryableError(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(client.maxRetryAttempts+1),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
}
