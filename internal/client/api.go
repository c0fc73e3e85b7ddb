package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"collabsync/internal/domain"
	models "collabsync/internal/domain/models/collab"
)

// APIClient calls the REST endpoints.
type APIClient struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// NewAPIClient creates a REST client for the server at baseURL.
func NewAPIClient(baseURL, token string, timeout time.Duration) (*APIClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{baseURL: u, token: token, http: &http.Client{Timeout: timeout}}, nil
}

// APIError is a non-2xx response. Status maps back onto the domain errors.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Unwrap lets callers use errors.Is with the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusGatewayTimeout:
		return domain.ErrTimeout
	}
	return nil
}

func (c *APIClient) CreateDocument(ctx context.Context, req *models.CreateDocumentRequest) (*models.Document, error) {
	var doc models.Document
	return &doc, c.do(ctx, http.MethodPost, "api/documents", req, &doc)
}

func (c *APIClient) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	return &doc, c.do(ctx, http.MethodGet, "api/documents/"+url.PathEscape(documentID), nil, &doc)
}

// SaveDraft writes content as the document's draft (creating one if needed).
func (c *APIClient) SaveDraft(ctx context.Context, documentID string, req *models.SaveDraftRequest) (*models.Document, error) {
	var doc models.Document
	return &doc, c.do(ctx, http.MethodPut, "api/documents/"+url.PathEscape(documentID)+"/draft", req, &doc)
}

func (c *APIClient) DiscardDraft(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	return &doc, c.do(ctx, http.MethodDelete, "api/documents/"+url.PathEscape(documentID)+"/draft", nil, &doc)
}

func (c *APIClient) ListVersions(ctx context.Context, documentID string) ([]models.Version, error) {
	var versions []models.Version
	return versions, c.do(ctx, http.MethodGet, "api/documents/"+url.PathEscape(documentID)+"/versions", nil, &versions)
}

func (c *APIClient) PromoteDraft(ctx context.Context, documentID string, req *models.PromoteRequest) (*models.Version, error) {
	var v models.Version
	return &v, c.do(ctx, http.MethodPost, "api/documents/"+url.PathEscape(documentID)+"/versions", req, &v)
}

func (c *APIClient) ListComments(ctx context.Context, documentID string) ([]models.Comment, error) {
	var comments []models.Comment
	return comments, c.do(ctx, http.MethodGet, "api/documents/"+url.PathEscape(documentID)+"/comments", nil, &comments)
}

func (c *APIClient) ListCollaborators(ctx context.Context, documentID string) ([]models.Collaborator, error) {
	var collaborators []models.Collaborator
	return collaborators, c.do(ctx, http.MethodGet, "api/documents/"+url.PathEscape(documentID)+"/collaborators", nil, &collaborators)
}

func (c *APIClient) Invite(ctx context.Context, documentID string, req *models.InviteRequest) (*models.Collaborator, error) {
	var collaborator models.Collaborator
	return &collaborator, c.do(ctx, http.MethodPost, "api/documents/"+url.PathEscape(documentID)+"/collaborators", req, &collaborator)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.NewDecoder(resp.Body).Decode(&problem) == nil {
			if problem.Title != "" {
				apiErr.Title = problem.Title
			}
			apiErr.Detail = problem.Detail
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
