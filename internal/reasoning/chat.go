package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/redact"
)

const (
	DefaultOllamaURL = "http://localhost:11434/v1/chat/completions"
	DefaultModel     = "llama3.2"

	systemPrompt = `You are an Informatica operations expert. Troubleshoot fatal errors in Informatica logs.
Use the SOP guidance provided with the log, propose a fix, and answer exactly as:
Explanation: <your explanation>
Confidence Score: <integer 0-100>`
)

// ChatExplainer asks an OpenAI-compatible chat completions endpoint
// (Ollama, Groq) for the explanation. The SOP for the record's error code
// is included in the prompt. With Redact set, paths, hosts, addresses and
// credentials are tokenized before the prompt is sent and restored in the
// reply; a reply quoting a redacted value is rejected.
type ChatExplainer struct {
	URL    string
	Model  string
	APIKey string
	Redact bool
	Client *http.Client
}

// NewChatExplainer returns an explainer with defaults filled in.
func NewChatExplainer(url, modelName, apiKey string) *ChatExplainer {
	if url == "" {
		url = DefaultOllamaURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatExplainer{
		URL:    url,
		Model:  modelName,
		APIKey: apiKey,
		Redact: redact.DetectMode(url) == redact.ModeCloud,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ChatExplainer) Explain(ctx context.Context, rec model.Record) (Explanation, error) {
	sop, _ := LookupSOP(rec.ErrorCode)
	user := fmt.Sprintf("Troubleshoot this Informatica log:\n\n```\n%s\n```\n\nError code: %s\nWorkflow: %s\nNode ID: %s\n\nSOP guidance:\n%s",
		rec.RawLog, rec.ErrorCode, rec.WorkflowName, rec.NodeID, sop.Format())

	var tm *redact.TokenMap
	if c.Redact {
		tm = redact.NewTokenMap()
		user = redact.Redact(user, tm)
		user = tm.Legend() + user
	}

	raw, err := c.complete(ctx, systemPrompt, user)
	if err != nil {
		return Explanation{}, err
	}

	trace := []string{fmt.Sprintf("get_sop_guidance(%q) => %s", rec.ErrorCode, sop.Title)}
	if tm != nil {
		if leaks := redact.Leaks(raw, tm); len(leaks) > 0 {
			return Explanation{}, fmt.Errorf("reasoning: response contains %d redacted values", len(leaks))
		}
		raw = redact.Restore(raw, tm)
		trace = append(trace, fmt.Sprintf("redact => %d values tokenized", tm.Len()))
	}

	e := ParseExplanation(raw)
	e.Steps = append([]string(nil), sop.Steps...)
	e.ToolTrace = append(trace, fmt.Sprintf("chat_completion(%s) => %d bytes", c.Model, len(raw)))
	return e, nil
}

func (c *ChatExplainer) complete(ctx context.Context, systemMsg, userMsg string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemMsg},
			{"role": "user", "content": userMsg},
		},
		"max_tokens":  600,
		"temperature": 0,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reasoning: create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reasoning: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reasoning: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return "", fmt.Errorf("reasoning: empty response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
