package bim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to the model platform's REST API.
//
// The HTTP client is injected so callers control auth: production wiring
// passes an oauth2-backed client, tests pass a plain one against a local
// server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the platform at baseURL.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bim: api returned %d: %s", e.Status, e.Body)
}

// ListLocations fetches the full nested location hierarchy of a project.
func (c *Client) ListLocations(ctx context.Context, projectID string) ([]LocationNode, error) {
	var out struct {
		Locations []LocationNode `json:"locations"`
	}
	path := fmt.Sprintf("/projects/%s/locations", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out.Locations, nil
}

// productQuery selects the entity fields the sync needs. The platform's
// query endpoint returns only what is asked for.
var productQuery = map[string]any{
	"fields": []string{"id", "name", "class", "locationId", "properties"},
}

// QueryProducts fetches the asset-bearing entities of one model.
func (c *Client) QueryProducts(ctx context.Context, projectID, modelID string) ([]Entity, error) {
	var out struct {
		Products []Entity `json:"products"`
	}
	path := fmt.Sprintf("/projects/%s/models/%s/products/query",
		url.PathEscape(projectID), url.PathEscape(modelID))
	if err := c.do(ctx, http.MethodPost, path, productQuery, &out); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return out.Products, nil
}

// ApplyModelChanges pushes property assignments back into the model. The
// platform applies what it can and reports per-entity errors for the rest;
// those are returned for the caller to log, not retried.
func (c *Client) ApplyModelChanges(ctx context.Context, projectID, modelID string, writes []PropertyWrite) ([]ChangeError, error) {
	if len(writes) == 0 {
		return nil, nil
	}

	type propertyUpdate struct {
		PropertySet string `json:"propertySet"`
		Property    string `json:"property"`
		Value       string `json:"value"`
	}
	update := make(map[string][]propertyUpdate)
	for _, w := range writes {
		update[w.EntityID] = append(update[w.EntityID], propertyUpdate{
			PropertySet: w.PropertySet,
			Property:    w.Property,
			Value:       w.Value,
		})
	}

	var out struct {
		Errors []ChangeError `json:"errors"`
	}
	path := fmt.Sprintf("/projects/%s/models/%s/data",
		url.PathEscape(projectID), url.PathEscape(modelID))
	body := map[string]any{"update": update}
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, fmt.Errorf("apply model changes: %w", err)
	}

	c.logger.Debug("model changes applied",
		"project", projectID,
		"model", modelID,
		"entities", len(update),
		"errors", len(out.Errors),
	)
	return out.Errors, nil
}

// do issues one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
