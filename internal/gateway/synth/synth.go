package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"quantsignal/internal/logger"
	"quantsignal/internal/pkg/jsonutil"
	"quantsignal/internal/strategy"
)

// ErrDisabled 表示未配置模型（未启用或缺少 api_key）。
var ErrDisabled = errors.New("strategy synthesis disabled")

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
	maxAttempts    = 2
)

type Config struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float32
	HTTPClient  *http.Client
}

// Generator 把自然语言描述转换为策略文档（OpenAI 兼容接口）。
type Generator struct {
	cfg    Config
	client *openai.Client
}

func New(cfg Config) *Generator {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	g := &Generator{cfg: cfg}
	if !g.Enabled() {
		return g
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = strings.TrimSuffix(base, "/chat/completions")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	g.client = openai.NewClientWithConfig(oc)
	return g
}

func (g *Generator) Enabled() bool {
	return g != nil && g.cfg.Enabled && strings.TrimSpace(g.cfg.APIKey) != ""
}

func (g *Generator) Model() string { return g.cfg.Model }

// Generate asks the model for a strategy document matching description and
// returns it in compact form. A reply that does not compile is sent back once
// with the compile error; a second failure returns the *strategy.CompileError.
func (g *Generator) Generate(ctx context.Context, description string) (string, error) {
	if !g.Enabled() {
		return "", ErrDisabled
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return "", fmt.Errorf("strategy description is empty")
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
		{Role: openai.ChatMessageRoleUser, Content: description},
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := g.complete(ctx, messages)
		if err != nil {
			return "", err
		}
		code, err := documentFrom(reply)
		if err == nil {
			logger.Infof("[synth] generated %s in %d attempt(s)", strategy.Describe(code), attempt)
			return code, nil
		}
		lastErr = err
		logger.Warnf("[synth] attempt %d/%d rejected: %v", attempt, maxAttempts, err)
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "The document was rejected: " + err.Error() + ". Reply with a corrected JSON document only."},
		)
	}
	return "", lastErr
}

func (g *Generator) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	logger.Debugf("[synth] request model=%s messages=%d", g.cfg.Model, len(messages))
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func documentFrom(reply string) (string, error) {
	raw, ok := jsonutil.ExtractObject(reply)
	if !ok {
		return "", &strategy.CompileError{Reason: "reply contains no JSON object"}
	}
	code, err := jsonutil.Compact(raw)
	if err != nil {
		return "", &strategy.CompileError{Reason: "reply JSON is malformed", Err: err}
	}
	if _, err := strategy.Compile(code); err != nil {
		return "", err
	}
	return code, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You translate trading strategy descriptions into quantsignal strategy documents.\n")
	b.WriteString("Strategies produce a daily signal: 1 long, -1 short, 0 flat. Prefer a built-in kind when it fits; otherwise use kind \"rule\".\n\n")
	b.WriteString(strategy.Reference())
	b.WriteString("\nExamples:\n")
	b.WriteString(`{"version":1,"kind":"sma_cross","params":{"fast":5,"slow":20}}` + "\n")
	b.WriteString(`{"version":1,"kind":"rule","params":{"long":"crosses_above(close, highest(high, 20))","short":"rsi(close, 14) > 80"}}` + "\n")
	b.WriteString("\nReply with exactly one JSON document and nothing else.")
	return b.String()
}
