package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/normalize"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	openAIURL        = "https://api.openai.com/v1/chat/completions"

	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultMaxTokens      = 1024
	defaultLLMConfidence  = 0.8

	promptMessages = 10
	promptBodyLen  = 500
	requestTimeout = 60 * time.Second

	systemPrompt = "You are an email analysis assistant. " +
		"Generate concise summaries and extract action items."
)

var jsonFence = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// LLMOption customizes an LLM summarizer.
type LLMOption func(*LLM)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) LLMOption {
	return func(l *LLM) {
		l.httpClient = c
	}
}

// WithEndpoint overrides the provider URL.
func WithEndpoint(url string) LLMOption {
	return func(l *LLM) {
		l.endpoint = url
	}
}

// LLM summarizes through a hosted chat model. The provider client is built
// on the first call and cached; a construction failure is returned as an
// ordinary error.
type LLM struct {
	cfg        model.LLMConfig
	endpoint   string
	httpClient *http.Client

	mu     sync.Mutex
	client completer
}

// completer sends one system+user exchange and returns the reply text.
type completer interface {
	complete(ctx context.Context, system, prompt string) (string, error)
}

// NewLLM creates an LLM summarizer. No network activity happens until the
// first GenerateSummary call.
func NewLLM(cfg model.LLMConfig, opts ...LLMOption) *LLM {
	l := &LLM{cfg: cfg}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GenerateSummary implements Summarizer.
func (l *LLM) GenerateSummary(
	ctx context.Context,
	msgs []model.NormalizedMessage,
) (model.Summary, error) {
	if len(msgs) == 0 {
		return emptySummary(), nil
	}

	client, err := l.getClient()
	if err != nil {
		return model.Summary{}, err
	}

	reply, err := client.complete(ctx, systemPrompt, buildPrompt(msgs))
	if err != nil {
		return model.Summary{}, err
	}

	s, err := parseReply(reply)
	if err != nil {
		return model.Summary{}, err
	}
	s.MessageCount = len(msgs)
	return s, nil
}

func (l *LLM) getClient() (completer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	if l.cfg.APIKey == "" {
		return nil, errors.New("llm api key is not configured")
	}

	httpClient := l.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	maxTokens := l.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	switch strings.ToLower(l.cfg.Provider) {
	case "", ProviderAnthropic:
		l.client = &anthropicClient{
			apiKey:    l.cfg.APIKey,
			model:     withDefault(l.cfg.Model, defaultAnthropicModel),
			maxTokens: maxTokens,
			url:       withDefault(l.endpoint, anthropicURL),
			http:      httpClient,
		}
	case ProviderOpenAI:
		l.client = &openAIClient{
			apiKey:    l.cfg.APIKey,
			model:     withDefault(l.cfg.Model, defaultOpenAIModel),
			maxTokens: maxTokens,
			url:       withDefault(l.endpoint, openAIURL),
			http:      httpClient,
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", l.cfg.Provider)
	}

	return l.client, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// buildPrompt describes at most the first promptMessages messages, each
// body cut to promptBodyLen characters.
func buildPrompt(msgs []model.NormalizedMessage) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Analyze these %d emails and provide a comprehensive "+
		"summary with actionable tasks.\n\nMessages:\n", len(msgs))

	for i, m := range msgs {
		if i == promptMessages {
			break
		}
		fmt.Fprintf(&sb, "From: %s\n", m.FromAddr)
		fmt.Fprintf(&sb, "Subject: %s\n", m.Subject)
		fmt.Fprintf(&sb, "Date: %s\n", m.Date.Format(time.RFC3339))
		fmt.Fprintf(&sb, "Body: %s...\n\n", truncateRunes(normalize.PlainText(m), promptBodyLen))
	}

	sb.WriteString(`Please provide:
1. A clear, organized digest covering key topics and themes, important
   updates, decisions or announcements, and any urgent matters.
2. Every task, action item or request, including explicit requests,
   implicit obligations ("we need to", "should", "must"), deadlines,
   follow-ups and questions that need answers.

Respond with JSON in this exact format:
{
  "digest": "Well-organized summary with clear sections and bullet points",
  "action_items": [
    {
      "action": "Clear description of what needs to be done",
      "owner": "person responsible or null if not specified",
      "deadline": "deadline if mentioned or null",
      "evidence_snippet": "relevant quote from the email showing this task"
    }
  ],
  "confidence": 0.9
}`)

	return sb.String()
}

type llmReply struct {
	Digest      string `json:"digest"`
	ActionItems []struct {
		Action   string `json:"action"`
		Owner    string `json:"owner"`
		Deadline string `json:"deadline"`
		Evidence string `json:"evidence_snippet"`
	} `json:"action_items"`
	Confidence *float64 `json:"confidence"`
}

// parseReply decodes the model's JSON answer, unwrapping a ```json fence
// when present.
func parseReply(content string) (model.Summary, error) {
	if m := jsonFence.FindStringSubmatch(content); m != nil {
		content = m[1]
	}

	var r llmReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &r); err != nil {
		return model.Summary{}, fmt.Errorf("decoding llm reply: %w", err)
	}

	s := model.Summary{
		Digest:      r.Digest,
		ActionItems: make([]model.ActionItem, 0, len(r.ActionItems)),
		Confidence:  defaultLLMConfidence,
	}
	if r.Confidence != nil {
		s.Confidence = min(max(*r.Confidence, 0), 1)
	}
	for _, it := range r.ActionItems {
		s.ActionItems = append(s.ActionItems, model.ActionItem{
			Action:   it.Action,
			Owner:    it.Owner,
			Deadline: it.Deadline,
			Evidence: it.Evidence,
		})
	}

	return s, nil
}

// --- provider clients ---

type anthropicClient struct {
	apiKey    string
	model     string
	maxTokens int
	url       string
	http      *http.Client
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) complete(ctx context.Context, system, prompt string) (string, error) {
	body := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, c.http, c.url, headers, body, &resp); err != nil {
		return "", err
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("llm reply has no text content")
	}
	return strings.Join(parts, ""), nil
}

type openAIClient struct {
	apiKey    string
	model     string
	maxTokens int
	url       string
	http      *http.Client
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) complete(ctx context.Context, system, prompt string) (string, error) {
	body := openAIRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   c.maxTokens,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}

	var resp openAIResponse
	if err := postJSON(ctx, c.http, c.url, headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm reply has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// postJSON sends body to url and decodes a 200 reply into out.
func postJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	headers map[string]string,
	body, out any,
) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling llm api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
