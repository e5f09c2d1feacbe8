package providers

import (
	"context"
	"fmt"
	"net/http"
)

// SimpleAPIKeyAuth puts a static key in a request header, plus any fixed
// attribution headers the upstream expects (OpenRouter's HTTP-Referer and X-Title).
type SimpleAPIKeyAuth struct {
	apiKey     string
	headerName string // e.g., "Authorization"
	prefix     string // e.g., "Bearer "
	extra      map[string]string
}

// NewSimpleAPIKeyAuth creates a new simple API key authenticator
func NewSimpleAPIKeyAuth(apiKey, headerName, prefix string) *SimpleAPIKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
	}
	if prefix == "" {
		prefix = "Bearer "
	}

	return &SimpleAPIKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// WithHeader adds a fixed header applied alongside the key. Empty values are skipped.
func (a *SimpleAPIKeyAuth) WithHeader(name, value string) *SimpleAPIKeyAuth {
	if value == "" {
		return a
	}
	if a.extra == nil {
		a.extra = make(map[string]string)
	}
	a.extra[name] = value
	return a
}

// Authenticate returns an auth context with the API key
func (a *SimpleAPIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &SimpleAPIKeyAuthContext{
		apiKey:     a.apiKey,
		headerName: a.headerName,
		prefix:     a.prefix,
		extra:      a.extra,
	}, nil
}

// SimpleAPIKeyAuthContext holds the auth context for API key authentication
type SimpleAPIKeyAuthContext struct {
	apiKey     string
	headerName string
	prefix     string
	extra      map[string]string
}

// ApplyToRequest adds the API key to the HTTP request
func (c *SimpleAPIKeyAuthContext) ApplyToRequest(ctx context.Context, req any) error {
	httpReq, ok := req.(*http.Request)
	if !ok {
		return fmt.Errorf("expected *http.Request, got %T", req)
	}

	httpReq.Header.Set(c.headerName, c.prefix+c.apiKey)
	for name, value := range c.extra {
		httpReq.Header.Set(name, value)
	}
	return nil
}
