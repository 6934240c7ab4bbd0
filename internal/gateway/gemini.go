package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"overseer/internal/agent"
)

const geminiDefault = "gemini-2.0-flash"

// GeminiConfig configures a gemini-backed gateway pool.
type GeminiConfig struct {
	Credentials []Credential
	Model       string
	// RolePrefs names the credential tried first per role.
	RolePrefs map[agent.Role]string
}

type geminiBackend struct {
	credName string
	client   *genai.Client
	model    string
}

// NewGemini builds one genai client per credential and returns the failover
// pool. Clients are warmed up concurrently; any failure aborts construction.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Client, error) {
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("gemini gateway: no credentials configured")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = geminiDefault
	}

	backends := make([]backend, len(cfg.Credentials))
	g, gctx := errgroup.WithContext(ctx)
	for i, cred := range cfg.Credentials {
		g.Go(func() error {
			c, err := genai.NewClient(gctx, &genai.ClientConfig{
				APIKey:  cred.APIKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return fmt.Errorf("gemini client init (%s): %w", cred.Name, err)
			}
			backends[i] = &geminiBackend{credName: cred.Name, client: c, model: model}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Client{backends: backends, prefs: cfg.RolePrefs}, nil
}

func (b *geminiBackend) name() string { return b.credName }

func (b *geminiBackend) generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = opts.Schema
	}
	if opts.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if blocked, reason := geminiBlocked(resp); blocked {
		return nil, &Error{Kind: KindContentBlocked, Message: reason}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Kind: KindUnknown, Message: "gemini: empty response"}
	}

	res := &Result{Text: resp.Candidates[0].Content.Parts[0].Text}
	if resp.UsageMetadata != nil {
		res.TokenCount = int(resp.UsageMetadata.TotalTokenCount)
	}
	res.Sources = geminiSources(resp.Candidates[0])
	return res, nil
}

func geminiBlocked(resp *genai.GenerateContentResponse) (bool, string) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true, fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonProhibitedContent:
			return true, fmt.Sprintf("response blocked: %s", resp.Candidates[0].FinishReason)
		}
	}
	return false, ""
}

func geminiSources(cand *genai.Candidate) []string {
	if cand.GroundingMetadata == nil {
		return nil
	}
	var urls []string
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk.Web != nil && chunk.Web.URI != "" {
			urls = append(urls, chunk.Web.URI)
		}
	}
	return urls
}

// classifyGeminiError maps a genai transport error onto the taxonomy.
// A 429 is a per-key quota unless the message marks it as project-wide.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return &Error{Kind: KindUnknown, Message: err.Error()}
	}

	switch {
	case apiErr.Code == 429:
		msg := strings.ToLower(apiErr.Message)
		if strings.Contains(msg, "project") || strings.Contains(msg, "per day") || strings.Contains(msg, "daily") {
			return &Error{Kind: KindQuotaGlobal, Message: apiErr.Message, HTTPStatus: apiErr.Code}
		}
		return &Error{Kind: KindQuotaKey, Message: apiErr.Message, HTTPStatus: apiErr.Code}
	case apiErr.Code >= 500:
		return &Error{Kind: KindServerTransient, Message: apiErr.Message, HTTPStatus: apiErr.Code}
	case apiErr.Code >= 400:
		return &Error{Kind: KindInvalidRequest, Message: apiErr.Message, HTTPStatus: apiErr.Code}
	}
	return &Error{Kind: KindUnknown, Message: apiErr.Message, HTTPStatus: apiErr.Code}
}
