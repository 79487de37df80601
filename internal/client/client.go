// Package client is the typed HTTP wrapper around the trainboard REST API.
// It owns no state: every method issues exactly one request, with no
// retries, no caching and no validation beyond serialization.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/pkg/models"
)

// ErrDecode is returned when a successful response carries a body that
// does not match the expected payload.
var ErrDecode = errors.New("malformed response body")

// Client is the interface for talking to the backend.
type Client interface {
	Stats(ctx context.Context) (models.Stats, error)
	ListDatasets(ctx context.Context) ([]models.Dataset, error)
	UploadDataset(ctx context.Context, req UploadRequest) (*models.Dataset, error)
	ListModels(ctx context.Context) ([]models.Model, error)
	TrainModel(ctx context.Context, req TrainRequest) (*models.Model, error)
	TestModel(ctx context.Context, modelID uuid.UUID, input string) (*models.InferenceResult, error)
	ListDeployments(ctx context.Context) ([]models.Deployment, error)
	DeployModel(ctx context.Context, modelID uuid.UUID) (*models.Deployment, error)
}

// UploadRequest is the multipart payload of POST /datasets/upload.
type UploadRequest struct {
	Name     string
	Filename string
	Content  io.Reader
}

// TrainRequest is the multipart payload of POST /models/train.
type TrainRequest struct {
	DatasetID    uuid.UUID
	ModelName    string
	CustomPrompt string
}

// HTTPClient implements Client over the backend's HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client for baseURL (e.g. "http://localhost:8080/api").
// A zero timeout leaves requests bounded only by the caller's context.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := c.do(ctx, http.MethodGet, "/dashboard/stats", "", nil, &stats)
	return stats, err
}

func (c *HTTPClient) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	var datasets []models.Dataset
	if err := c.do(ctx, http.MethodGet, "/datasets", "", nil, &datasets); err != nil {
		return nil, err
	}
	if datasets == nil {
		return []models.Dataset{}, nil
	}
	return datasets, nil
}

func (c *HTTPClient) UploadDataset(ctx context.Context, req UploadRequest) (*models.Dataset, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if req.Content != nil {
		if _, err := io.Copy(part, req.Content); err != nil {
			return nil, fmt.Errorf("reading upload content: %w", err)
		}
	}
	if err := writer.WriteField("name", req.Name); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}

	var dataset models.Dataset
	if err := c.do(ctx, http.MethodPost, "/datasets/upload", writer.FormDataContentType(), &buf, &dataset); err != nil {
		return nil, err
	}
	return &dataset, nil
}

func (c *HTTPClient) ListModels(ctx context.Context) ([]models.Model, error) {
	var list []models.Model
	if err := c.do(ctx, http.MethodGet, "/models", "", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		return []models.Model{}, nil
	}
	return list, nil
}

func (c *HTTPClient) TrainModel(ctx context.Context, req TrainRequest) (*models.Model, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"dataset_id", req.DatasetID.String()},
		{"model_name", req.ModelName},
		{"custom_prompt", req.CustomPrompt},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("building training form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building training form: %w", err)
	}

	var model models.Model
	if err := c.do(ctx, http.MethodPost, "/models/train", writer.FormDataContentType(), &buf, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

func (c *HTTPClient) TestModel(ctx context.Context, modelID uuid.UUID, input string) (*models.InferenceResult, error) {
	body, err := json.Marshal(map[string]string{"input_text": input})
	if err != nil {
		return nil, fmt.Errorf("encoding test request: %w", err)
	}

	var result models.InferenceResult
	path := fmt.Sprintf("/models/%s/test", url.PathEscape(modelID.String()))
	if err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) ListDeployments(ctx context.Context) ([]models.Deployment, error) {
	var list []models.Deployment
	if err := c.do(ctx, http.MethodGet, "/models/deployed", "", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		return []models.Deployment{}, nil
	}
	return list, nil
}

func (c *HTTPClient) DeployModel(ctx context.Context, modelID uuid.UUID) (*models.Deployment, error) {
	var deployment models.Deployment
	path := fmt.Sprintf("/models/%s/deploy", url.PathEscape(modelID.String()))
	if err := c.do(ctx, http.MethodPost, path, "", nil, &deployment); err != nil {
		return nil, err
	}
	return &deployment, nil
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return &HTTPStatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: raw}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrDecode, method, path, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
