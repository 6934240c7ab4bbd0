package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const ollamaDefault = "phi4:latest"

// OllamaConfig configures the local-backend gateway. There is no credential
// pool to fail over across: the single "local" entry is the whole pool.
type OllamaConfig struct {
	Host  string
	Model string
}

type ollamaBackend struct {
	client *api.Client
	model  string
}

// NewOllama wires a single-credential pool against a local ollama server.
func NewOllama(cfg OllamaConfig) (*Client, error) {
	c, err := api.ClientFromEnvironment()
	if err != nil {
		host := cfg.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		u, uerr := url.Parse(host)
		if uerr != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", host, uerr)
		}
		c = api.NewClient(u, nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = ollamaDefault
	}
	return &Client{backends: []backend{&ollamaBackend{client: c, model: model}}}, nil
}

func (b *ollamaBackend) name() string { return "local" }

func (b *ollamaBackend) generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  b.model,
		Prompt: prompt,
		Stream: &stream,
	}
	if opts.Schema != nil {
		raw, err := json.Marshal(opts.Schema)
		if err != nil {
			return nil, &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("marshal schema: %v", err)}
		}
		req.Format = raw
		req.Prompt = prompt + "\n\nReturn ONLY strict JSON. No extra text."
	}
	// opts.WebSearch has no local equivalent and is ignored.

	var out strings.Builder
	var tokens int
	err := b.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		out.WriteString(gr.Response)
		tokens += gr.Metrics.PromptEvalCount + gr.Metrics.EvalCount
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Local server hiccups are transient; there is no quota to hit.
		return nil, &Error{Kind: KindServerTransient, Message: fmt.Sprintf("ollama generate: %v", err)}
	}
	return &Result{Text: out.String(), TokenCount: tokens}, nil
}
