// Built-in plugins. These cover the common cases a deployment needs out of
// the box: templating and casing transforms, and webhook/console distributors.
// Anything heavier ships as its own Plugin implementation registered in
// cmd/server.
package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// TemplatePlugin renders the step input through a pongo2 template supplied in
// the step config under "template". The input is exposed to the template as
// {{ content }}.
type TemplatePlugin struct{}

// Name implements Plugin.
func (TemplatePlugin) Name() string { return "template" }

// Invoke implements Plugin.
func (TemplatePlugin) Invoke(_ context.Context, input string, config map[string]any) (string, error) {
	raw, ok := config["template"].(string)
	if !ok || raw == "" {
		return "", errors.New("config is missing a template")
	}
	tpl, err := pongo2.FromString(raw)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	out, err := tpl.Execute(pongo2.Context{"content": input})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// UppercasePlugin upper-cases the step input. Mostly useful in development
// and tests as a visible, dependency-free transform.
type UppercasePlugin struct{}

// Name implements Plugin.
func (UppercasePlugin) Name() string { return "uppercase" }

// Invoke implements Plugin.
func (UppercasePlugin) Invoke(_ context.Context, input string, _ map[string]any) (string, error) {
	return strings.ToUpper(input), nil
}

// WebhookPlugin POSTs the step input to the URL in the step config, with
// retries and backoff. Distribute-stage only in practice: its output is the
// unchanged input.
type WebhookPlugin struct {
	// Client may be overridden in tests; nil gets a quiet retryable client.
	Client *retryablehttp.Client
}

// Name implements Plugin.
func (*WebhookPlugin) Name() string { return "webhook" }

// Invoke implements Plugin.
func (p *WebhookPlugin) Invoke(ctx context.Context, input string, config map[string]any) (string, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return "", errors.New("config is missing a url")
	}

	client := p.Client
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 3
		client.Logger = nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(input)))
	if err != nil {
		return "", err
	}
	contentType := "text/plain; charset=utf-8"
	if ct, ok := config["content_type"].(string); ok && ct != "" {
		contentType = ct
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return input, nil
}

// ConsolePlugin logs the step input. The zero-config distributor for local
// runs and tests.
type ConsolePlugin struct {
	Log zerolog.Logger
}

// Name implements Plugin.
func (*ConsolePlugin) Name() string { return "console" }

// Invoke implements Plugin.
func (p *ConsolePlugin) Invoke(_ context.Context, input string, _ map[string]any) (string, error) {
	p.Log.Info().Str("plugin", "console").Msg(input)
	return input, nil
}
