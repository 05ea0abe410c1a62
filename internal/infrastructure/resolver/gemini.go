package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

const (
	// DefaultGeminiBaseURL is the public Generative Language API.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	fallbackModel        = "models/text-bison-001"
	maxResponseBytes     = 1 << 20
)

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// GeminiConfig configures the hosted model resolver.
type GeminiConfig struct {
	APIKey string
	// Model pins the model; empty means discover one through ListModels.
	Model   string
	BaseURL string
}

// Gemini resolves intents with Google's Generative Language REST API.
type Gemini struct {
	cfg    GeminiConfig
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	model string
}

// NewGemini creates the resolver. client may be nil.
func NewGemini(cfg GeminiConfig, client *http.Client, logger *slog.Logger) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{cfg: cfg, client: client, logger: logger}
}

// Init selects the model up front. It is safe to skip; Resolve selects
// lazily on first use.
func (g *Gemini) Init(ctx context.Context) error {
	_, err := g.resolveModel(ctx)
	return err
}

// Resolve implements port.IntentResolver. Transport and API failures are
// returned as apperr.ErrExternalService; a reply without a JSON object is
// passed through as plain text with no action.
func (g *Gemini) Resolve(ctx context.Context, s model.Session) (model.Intent, error) {
	modelName, err := g.resolveModel(ctx)
	if err != nil {
		return model.Intent{}, err
	}

	text, err := g.generate(ctx, modelName, buildPrompt(s))
	if err != nil {
		return model.Intent{}, err
	}
	return parseIntent(text)
}

func (g *Gemini) resolveModel(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != "" {
		return g.model, nil
	}
	if g.cfg.Model != "" {
		g.model = qualifyModel(g.cfg.Model)
		return g.model, nil
	}

	chosen, err := g.discoverModel(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: list models: %w", apperr.ErrExternalService, err)
		}
		g.logger.WarnContext(ctx, "gemini model discovery failed, using fallback", "model", fallbackModel, "error", err)
		chosen = fallbackModel
	}
	g.logger.InfoContext(ctx, "gemini model selected", "model", chosen)
	g.model = chosen
	return chosen, nil
}

type listModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// discoverModel picks the first model advertising generateContent, then any
// gemini or bison model by name.
func (g *Gemini) discoverModel(ctx context.Context) (string, error) {
	var resp listModelsResponse
	if err := g.do(ctx, http.MethodGet, "/v1/models", nil, &resp); err != nil {
		return "", err
	}
	for _, m := range resp.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				return m.Name, nil
			}
		}
	}
	for _, prefer := range []string{"gemini", "chat-bison", "text-bison", "bison"} {
		for _, m := range resp.Models {
			if strings.Contains(strings.ToLower(m.Name), prefer) {
				return m.Name, nil
			}
		}
	}
	return "", errors.New("no usable model listed")
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
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

func (g *Gemini) generate(ctx context.Context, modelName, prompt string) (string, error) {
	req := generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
	var resp generateResponse
	if err := g.do(ctx, http.MethodPost, "/v1/"+modelName+":generateContent", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", apperr.ErrExternalService)
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func (g *Gemini) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode gemini request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	endpoint := g.cfg.BaseURL + path + "?key=" + url.QueryEscape(g.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build gemini request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// url.Error embeds the key-bearing URL; keep only the cause.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: gemini %s %s: %w", apperr.ErrExternalService, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read gemini response: %w", apperr.ErrExternalService, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: gemini %s %s: status %d: %s",
			apperr.ErrExternalService, method, path, resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode gemini response: %w", apperr.ErrExternalService, err)
	}
	return nil
}

type modelReply struct {
	Reply         string `json:"reply"`
	NextAction    string `json:"nextAction"`
	ExtractedData struct {
		Amount *json.Number `json:"amount"`
		Phone  *string      `json:"phone"`
		Tenure *json.Number `json:"tenure"`
	} `json:"extractedData"`
}

// parseIntent reads the first JSON object in text. Fields the model filled
// with the wrong type are dropped rather than failing the turn.
func parseIntent(text string) (model.Intent, error) {
	match := jsonObjectRe.FindString(text)
	if match == "" {
		return model.Intent{Reply: strings.TrimSpace(text), NextAction: valueobject.ActionNone}, nil
	}

	var r modelReply
	dec := json.NewDecoder(strings.NewReader(match))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return model.Intent{Reply: strings.TrimSpace(text), NextAction: valueobject.ActionNone}, nil
	}

	action, err := valueobject.NewNextAction(r.NextAction)
	if err != nil {
		action = valueobject.ActionNone
	}
	intent := model.Intent{Reply: r.Reply, NextAction: action}
	if r.ExtractedData.Amount != nil {
		if d, err := decimal.NewFromString(r.ExtractedData.Amount.String()); err == nil && d.IsPositive() {
			intent.Amount = decimal.NewNullDecimal(d)
		}
	}
	if r.ExtractedData.Phone != nil {
		intent.Phone = *r.ExtractedData.Phone
	}
	if r.ExtractedData.Tenure != nil {
		if n, err := r.ExtractedData.Tenure.Int64(); err == nil {
			intent.TenureMonths = int(n)
		}
	}
	return intent, nil
}

func buildPrompt(s model.Session) string {
	amount := "Not set"
	if a, ok := s.RequestedAmount(); ok {
		amount = a.String()
	}
	tenure := "Not set"
	if s.TenureMonths() > 0 {
		tenure = fmt.Sprintf("%d months", s.TenureMonths())
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are Tara, an AI lending assistant for Tata Capital. You help customers get loans quickly.

Current session state:
- Step: %s
- KYC Verified: %t
- Requested Amount: %s
- Tenure: %s

Your tasks:
1. Greet warmly and ask for loan amount if not provided
2. Extract loan amount from user messages (look for numbers with "lakh" or "thousand")
3. Ask for phone number for verification
4. After KYC, explain the process
5. Request salary slip if needed
6. Congratulate on approval

CRITICAL: Respond with JSON in this format:
{
  "reply": "Your conversational response here",
  "nextAction": "collect_amount|collect_phone|verify_kyc|collect_salary|run_underwriting|generate_sanction|reject|null",
  "extractedData": {
    "amount": number or null,
    "phone": "phone number" or null,
    "tenure": number or null
  }
}

Be friendly, professional, and concise. Use Indian Rupee amounts (₹).

Conversation:
`, s.Step(), s.KYCVerified(), amount, tenure)
	for _, t := range s.Turns() {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	b.WriteString("\nRespond with JSON:")
	return b.String()
}

func qualifyModel(name string) string {
	if strings.HasPrefix(name, "models/") {
		return name
	}
	return "models/" + name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
