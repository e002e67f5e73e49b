// Package gateway wraps the remote HTTP API with typed calls. It holds no
// state besides the token source and performs no retries or caching.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/internal/types"
)

const maxResponseBytes = 8 << 20

// TokenSource supplies the bearer token attached to every call.
type TokenSource interface {
	Token() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithUnauthorizedHandler registers fn to run whenever the server answers 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client talks to the recipe API.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func()
	log            zerolog.Logger
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token and the user profile.
func (c *Client) Login(ctx context.Context, req types.LoginRequest) (*types.AuthResponse, error) {
	var out types.AuthResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its token and profile.
func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*types.AuthResponse, error) {
	var out types.AuthResponse
	if err := c.doJSON(ctx, "register", http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecognizeIngredients uploads img and returns the detected ingredient names.
func (c *Client) RecognizeIngredients(ctx context.Context, img types.Image) ([]string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := img.Filename
	if filename == "" {
		filename = "image"
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, transportError("recognize", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, transportError("recognize", err)
	}
	if err := w.Close(); err != nil {
		return nil, transportError("recognize", err)
	}

	var out types.RecognitionResponse
	if err := c.do(ctx, "recognize", http.MethodPost, "/api/v1/detect", &buf, w.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	if out.Ingredients == nil {
		out.Ingredients = []string{}
	}
	return out.Ingredients, nil
}

// RecommendRecipes asks for recipes using the given ingredient names. The
// caller must not pass an empty list.
func (c *Client) RecommendRecipes(ctx context.Context, ingredients []string) ([]types.Recipe, error) {
	var out types.RecommendResponse
	req := types.RecommendRequest{Ingredients: ingredients}
	if err := c.doJSON(ctx, "recommend", http.MethodPost, "/api/v1/recipes/recommend", req, &out); err != nil {
		return nil, err
	}
	if out.Recipes == nil {
		out.Recipes = []types.Recipe{}
	}
	return out.Recipes, nil
}

// GetRecipe fetches one recipe by id.
func (c *Client) GetRecipe(ctx context.Context, id string) (*types.Recipe, error) {
	var out types.Recipe
	if err := c.doJSON(ctx, "get recipe", http.MethodGet, "/api/v1/recipes/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveRecipe persists recipe for the current user. Saving the same content
// twice may create two records.
func (c *Client) SaveRecipe(ctx context.Context, recipe types.Recipe) (*types.SavedRecipe, error) {
	var out types.SavedRecipe
	if err := c.doJSON(ctx, "save recipe", http.MethodPost, "/api/v1/recipes/saved", recipe, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSavedRecipes returns the user's saved recipes.
func (c *Client) ListSavedRecipes(ctx context.Context) (*types.SavedRecipesPage, error) {
	var out types.SavedRecipesPage
	if err := c.doJSON(ctx, "list saved", http.MethodGet, "/api/v1/recipes/saved", nil, &out); err != nil {
		return nil, err
	}
	if out.Recipes == nil {
		out.Recipes = []types.Recipe{}
	}
	return &out, nil
}

// RemoveSavedRecipe deletes a saved recipe. A recipe that is already gone
// yields an error matching ErrNotFound.
func (c *Client) RemoveSavedRecipe(ctx context.Context, id string) error {
	return c.doJSON(ctx, "remove saved", http.MethodDelete, "/api/v1/recipes/saved/"+url.PathEscape(id), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: ErrValidation, Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return transportError(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Str("op", op).Err(err).Msg("request failed")
		return transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, fmt.Errorf("failed to read response: %w", err))
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := statusError(op, resp.StatusCode, errorMessage(data))
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return transportError(op, fmt.Errorf("empty response body"))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return transportError(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func errorMessage(body []byte) string {
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return strings.TrimSpace(string(body))
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
