// Package llm turns a scraped page plus a natural-language request into an
// executable action sequence. The model is forced into JSON output mode and
// its reply is validated before anything reaches the executor.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/scrape"
)

const (
	chatPath    = "/api/chat"
	temperature = 0.2
	timeoutSecs = 120

	maxRetries     = 2
	retryBaseDelay = 500 * time.Millisecond
)

// Suggestion is the model's answer: the actions to run and a spoken guide
// for the user.
type Suggestion struct {
	ActionSequence []action.Spec `json:"action_sequence"`
	VerbalGuide    string        `json:"verbal_guide"`
}

// Suggester produces an action plan for a user request against a scraped page.
type Suggester interface {
	Suggest(ctx context.Context, snap scrape.Snapshot, query string) (Suggestion, error)
}

type OllamaClient struct {
	host   string
	model  string
	http   *http.Client
	logger zerolog.Logger
}

func NewOllama(host, model string, logger zerolog.Logger) *OllamaClient {
	return &OllamaClient{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		http:   &http.Client{Timeout: timeoutSecs * time.Second},
		logger: logger,
	}
}

func (c *OllamaClient) Suggest(ctx context.Context, snap scrape.Snapshot, query string) (Suggestion, error) {
	prompt, err := buildPrompt(snap, query)
	if err != nil {
		return Suggestion{}, err
	}

	payload := chatPayload{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Format:   "json",
		Stream:   false,
		Options:  chatOptions{Temperature: temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Suggestion{}, fmt.Errorf("marshal payload: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("elements", len(snap.Elements)).
		Int("payload_size", len(body)).
		Msg("ollama request")

	raw, err := c.chat(ctx, body)
	if err != nil {
		return Suggestion{}, err
	}

	var sug Suggestion
	if err := json.Unmarshal([]byte(raw), &sug); err != nil {
		return Suggestion{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if err := validateSuggestion(&sug); err != nil {
		return Suggestion{}, err
	}

	c.logger.Debug().Int("actions", len(sug.ActionSequence)).Msg("ollama suggestion")
	return sug, nil
}

func (c *OllamaClient) chat(ctx context.Context, body []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("retrying ollama call")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+chatPath, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("ollama request: %w", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 400 {
			var apiErr struct {
				Error string `json:"error"`
			}
			msg := string(data)
			if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
				msg = apiErr.Error
			}
			lastErr = fmt.Errorf("ollama %d: %s", resp.StatusCode, msg)
			if resp.StatusCode >= 500 {
				continue
			}
			return "", lastErr
		}

		var cr chatResponse
		if err := json.Unmarshal(data, &cr); err != nil {
			lastErr = fmt.Errorf("parse response: %w", err)
			continue
		}
		return cr.Message.Content, nil
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// validateSuggestion enforces the contract the executor relies on: known
// action kinds, targets where the action needs one, and filled-in defaults
// for the fields models tend to omit.
func validateSuggestion(sug *Suggestion) error {
	normalized, err := action.Normalize(sug.ActionSequence)
	if err != nil {
		return err
	}
	for i, spec := range normalized {
		switch spec.Action {
		case action.Navigate, action.Scroll:
			// no target needed
		default:
			if strings.TrimSpace(spec.Target) == "" {
				return fmt.Errorf("action %d (%s) missing target", i, spec.Action)
			}
		}
	}
	sug.ActionSequence = normalized
	return nil
}

func buildPrompt(snap scrape.Snapshot, query string) (string, error) {
	elements, err := json.MarshalIndent(snap.Elements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal elements: %w", err)
	}
	return fmt.Sprintf(promptTemplate, elements, query), nil
}

const promptTemplate = `You are an accessibility assistant. The WEBSITE STRUCTURE below shows the currently VISIBLE part of the page only. Prefer actions that use only these elements; only suggest "scroll" if the user's goal clearly requires content that is not visible.

You must choose elements from the structure and use their exact "css_selector" or "xpath_selector" as "target". Prefer stable identifiers:
- For buttons (especially search): prefer "aria_label" when present (e.g. button[aria-label="Search"] or the element's id like #search-icon-legacy). These are more reliable than long class strings.
- For inputs: prefer id, name, or placeholder when present.

WEBSITE STRUCTURE (each element has css_selector, xpath_selector, text, id, aria_label, role, etc.):
%s

USER REQUEST: "%s"

Output valid JSON with:
- "action_sequence": list of action objects:
  - "action": "click" | "fill" | "navigate" | "press"
  - "target": MUST be the exact "css_selector" or "xpath_selector" string from an element in WEBSITE STRUCTURE above (e.g. "input#email", "button.submit-btn"). Use only values that appear in the structure.
  - "value": string to type (required for "fill" actions, omit for click/navigate)
  - "key": for "press" actions (e.g. "Enter")
- "verbal_guide": short step-by-step instructions in plain English

Example (targets must come from the website structure):
{
  "action_sequence": [
    {"action": "fill", "target": "input#email", "value": "user@example.com"},
    {"action": "fill", "target": "input#password", "value": "secret"},
    {"action": "click", "target": "button.sign-in"}
  ],
  "verbal_guide": "Enter your email, then password, then click Sign In."
}`

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format,omitempty"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}
