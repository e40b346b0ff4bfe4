// Package eam is the client for the target enterprise asset-management
// system: idempotent upserts and deletes for functional locations and
// assets, plus the live-dependency lookups the cleanup cascade needs.
//
// Delete refusals caused by structural dependencies are surfaced as
// ConflictError values with a closed set of kinds, so callers branch on
// data instead of error prose.
package eam

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

// Client talks to the target system's REST API.
//
// All upserts use create-or-update semantics keyed by the payload's stable
// identifier, so retrying a successful call is harmless.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the target at baseURL, authenticating every
// request with the given API key.
func New(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		logger:  logger,
	}
}

// APIError is a non-2xx, non-conflict response from the target.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eam: api returned %d: %s", e.Status, e.Body)
}

// errorBody is the target's error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UpsertLocation creates or updates a functional location and returns the
// target's reference for it.
func (c *Client) UpsertLocation(ctx context.Context, payload LocationPayload) (LocationRef, error) {
	var ref LocationRef
	path := "/locations/" + url.PathEscape(payload.LocationID)
	if err := c.do(ctx, http.MethodPut, path, payload, &ref); err != nil {
		return LocationRef{}, fmt.Errorf("upsert location %s: %w", payload.LocationID, err)
	}
	if ref.ID == "" {
		ref.ID = payload.LocationID
	}
	return ref, nil
}

// DeleteLocation removes a functional location.
//
// A structural refusal (live children, referencing assets) is returned as a
// *ConflictError; any other failure is an ordinary error.
func (c *Client) DeleteLocation(ctx context.Context, id string) error {
	path := "/locations/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err == nil || isNotFound(err) {
		// Not found means someone removed it out of band. The caller wants
		// it gone either way.
		return nil
	}
	if conflict := conflictFrom(err, id); conflict != nil {
		return conflict
	}
	return fmt.Errorf("delete location %s: %w", id, err)
}

// ListChildren returns the target's live child locations of id. Used by the
// cleanup cascade when a delete is refused with ConflictHasChildren.
func (c *Client) ListChildren(ctx context.Context, id string) ([]LocationRef, error) {
	var out struct {
		Locations []LocationRef `json:"locations"`
	}
	path := "/locations/" + url.PathEscape(id) + "/children"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list children of %s: %w", id, err)
	}
	return out.Locations, nil
}

// ListAssetsAt returns the target's live assets referencing location id.
// Used by the cleanup cascade when a delete is refused with
// ConflictAssetReference.
func (c *Client) ListAssetsAt(ctx context.Context, id string) ([]AssetRef, error) {
	var out struct {
		Assets []AssetRef `json:"assets"`
	}
	path := "/locations/" + url.PathEscape(id) + "/assets"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list assets at %s: %w", id, err)
	}
	return out.Assets, nil
}

// UpsertAsset creates or updates an asset record and returns the target's
// reference for it.
func (c *Client) UpsertAsset(ctx context.Context, payload AssetPayload) (AssetRef, error) {
	var ref AssetRef
	path := "/assets/" + url.PathEscape(payload.AssetNum)
	if err := c.do(ctx, http.MethodPut, path, payload, &ref); err != nil {
		return AssetRef{}, fmt.Errorf("upsert asset %s: %w", payload.AssetNum, err)
	}
	if ref.ID == "" {
		ref.ID = payload.AssetNum
	}
	return ref, nil
}

// DeleteAsset removes an asset record. Deleting an asset that is already
// gone succeeds.
func (c *Client) DeleteAsset(ctx context.Context, id string) error {
	path := "/assets/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err == nil || isNotFound(err) {
		return nil
	}
	return fmt.Errorf("delete asset %s: %w", id, err)
}

// conflictFrom turns a 409 response into a ConflictError, or nil when the
// error is not a conflict.
func conflictFrom(err error, locationID string) *ConflictError {
	apiErr, ok := err.(*statusError)
	if !ok || apiErr.status != http.StatusConflict {
		return nil
	}

	var body errorBody
	// Body may be prose rather than the error envelope; classify copes.
	_ = json.Unmarshal([]byte(apiErr.body), &body)
	message := body.Error.Message
	if message == "" {
		message = apiErr.body
	}

	return &ConflictError{
		Kind:       classifyConflict(body.Error.Code, message),
		LocationID: locationID,
		Message:    message,
	}
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

// statusError carries a raw non-2xx response until do's callers decide
// whether it is a conflict or a plain API failure.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.status, e.body)
}

// As exposes statusError as *APIError so callers outside the package see a
// stable type.
func (e *statusError) As(target any) bool {
	if p, ok := target.(**APIError); ok {
		*p = &APIError{Status: e.status, Body: e.body}
		return true
	}
	return false
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
	req.Header.Set("apikey", c.apiKey)
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
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
