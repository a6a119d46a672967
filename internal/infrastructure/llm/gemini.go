package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"FundingScanner/internal/config"
	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
)

const (
	defaultRetries   = 3
	defaultBaseDelay = 5 * time.Second

	geoSnippetLimit        = 3000
	enrichmentSnippetLimit = 4000
	maxFocusAreas          = 3
)

// Servers embed a suggested wait inside 429 bodies, either as the REST field
// ("retryDelay": "7s") or the proto text form (retry_delay { seconds: 7 }).
var (
	retryDelayJSONExpr  = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+)(?:\.\d+)?s"`)
	retryDelayProtoExpr = regexp.MustCompile(`retry_delay\s*{\s*seconds:\s*(\d+)\s*}`)
)

// GeminiClient implements ports.Classifier against the Gemini REST API.
// Failures never surface as errors: after the retry budget is spent, callers
// receive sentinel-valued results they can branch on.
type GeminiClient struct {
	endpoint   string
	model      string
	apiKey     string
	focusAreas []string
	httpClient *http.Client
	logger     *slog.Logger

	retries   int
	baseDelay time.Duration
	sleep     func(time.Duration)
}

var _ ports.Classifier = (*GeminiClient)(nil)

// NewGeminiClient builds a client from configuration.
func NewGeminiClient(cfg config.GeminiConfig, focusAreas []string, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		focusAreas: focusAreas,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		retries:    defaultRetries,
		baseDelay:  defaultBaseDelay,
		sleep:      time.Sleep,
	}
}

// GeographicScope runs the location-extraction task. On any failure the
// result carries empty sets, which the relevance rule treats as irrelevant.
func (c *GeminiClient) GeographicScope(ctx context.Context, title, fullText string) domain.GeoScope {
	c.logger.Info("extracting geographic scope", "title", clip(title, 40))

	text, err := c.generateWithRetry(ctx, geoPrompt(title, clip(fullText, geoSnippetLimit)))
	if err != nil {
		c.logger.Error("geo task failed permanently", "title", clip(title, 40), "error", err)
		return domain.GeoScope{}
	}

	raw, ok := extractJSON(text)
	if !ok {
		c.logger.Error("no JSON object in geo response", "title", clip(title, 40))
		return domain.GeoScope{}
	}

	var parsed struct {
		Eligible *[]string `json:"eligible"`
		Excluded *[]string `json:"excluded"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Eligible == nil || parsed.Excluded == nil {
		c.logger.Error("geo response malformed", "title", clip(title, 40), "error", err)
		return domain.GeoScope{}
	}

	scope := domain.GeoScope{Eligible: *parsed.Eligible, Excluded: *parsed.Excluded}
	c.logger.Debug("geo extraction complete", "eligible", scope.Eligible, "excluded", scope.Excluded)
	return scope
}

// Enrichment runs the metadata-extraction task. Transient exhaustion and
// malformed output are signaled through the sentinel fields on the result.
func (c *GeminiClient) Enrichment(ctx context.Context, title, fullText string) domain.Enrichment {
	c.logger.Info("enriching opportunity", "title", clip(title, 40))

	text, err := c.generateWithRetry(ctx, enrichmentPrompt(title, clip(fullText, enrichmentSnippetLimit), c.focusAreas))
	if err != nil {
		return enrichmentFailure(domain.SummaryCallFailed)
	}

	raw, ok := extractJSON(text)
	if !ok {
		c.logger.Error("no JSON object in enrichment response", "title", clip(title, 40))
		return enrichmentFailure(domain.SummaryNoJSONObject)
	}

	var result domain.Enrichment
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Error("enrichment response malformed", "title", clip(title, 40), "error", err)
		return enrichmentFailure(domain.SummaryMalformedJSON)
	}

	if len(result.FocusAreas) > maxFocusAreas {
		c.logger.Info("trimming focus areas", "title", clip(title, 40), "from", len(result.FocusAreas), "to", maxFocusAreas)
		result.FocusAreas = result.FocusAreas[:maxFocusAreas]
	}

	c.logger.Debug("enrichment complete", "title", clip(title, 40))
	return result
}

func enrichmentFailure(summary string) domain.Enrichment {
	return domain.Enrichment{
		FocusAreas:    []string{},
		FundingAmount: domain.FieldError,
		Funder:        domain.FieldError,
		Deadline:      domain.FieldError,
		Summary:       summary,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generateWithRetry calls generateContent, backing off on rate limits and
// transient failures up to the retry budget. A server-suggested wait time in
// the 429 body takes precedence over exponential backoff.
func (c *GeminiClient) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini client misconfigured: missing API key")
	}

	delay := c.baseDelay
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		text, status, body, err := c.generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if status == http.StatusTooManyRequests || strings.Contains(body, "RESOURCE_EXHAUSTED") {
			if suggested, ok := suggestedRetryDelay(body); ok {
				wait := suggested + time.Second
				c.logger.Warn("rate limit hit, honoring suggested wait", "wait", wait, "attempt", attempt, "retries", c.retries)
				c.sleep(wait)
			} else {
				c.logger.Warn("rate limit hit, backing off", "wait", delay, "attempt", attempt, "retries", c.retries)
				c.sleep(delay)
				delay *= 2
			}
			continue
		}

		c.logger.Error("generate call failed, retrying", "error", err, "wait", delay, "attempt", attempt, "retries", c.retries)
		c.sleep(delay)
	}

	return "", fmt.Errorf("gemini call failed after %d retries: %w", c.retries, lastErr)
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (text string, status int, body string, err error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", 0, "", fmt.Errorf("marshal generate payload: %w", err)
	}

	requestURL := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return "", 0, "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, string(raw), fmt.Errorf("gemini returned %s", resp.Status)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", resp.StatusCode, string(raw), fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", resp.StatusCode, string(raw), fmt.Errorf("response carried no candidates")
	}

	var sb strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), resp.StatusCode, string(raw), nil
}

func suggestedRetryDelay(body string) (time.Duration, bool) {
	for _, expr := range []*regexp.Regexp{retryDelayJSONExpr, retryDelayProtoExpr} {
		if match := expr.FindStringSubmatch(body); match != nil {
			seconds, err := strconv.Atoi(match[1])
			if err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second, true
			}
		}
	}
	return 0, false
}

// extractJSON pulls the first balanced JSON object out of a response that may
// wrap it in prose or markdown fences.
func extractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// clip bounds a string to at most n runes for prompts and log context.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
