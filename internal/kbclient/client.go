// Package kbclient is the HTTP client for the remote document-retrieval
// service. The service hosts the per-user knowledge base indexes;
// documents reach an index through a four-step protocol (lease, byte
// upload, file registration, index ingestion) driven by the gateway.
package kbclient

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_client.go -package=mocks github.com/uestcbean/phoebe-service/internal/kbclient Client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRemoteApplication is returned when the service answers with an HTTP
// success but an embedded failure flag. Callers must treat it exactly
// like a transport failure.
var ErrRemoteApplication = errors.New("remote application error")

const defaultTimeout = 30 * time.Second

// Client defines the operations of the remote knowledge base API.
type Client interface {
	// ApplyUploadLease requests an upload credential scoped to a category
	// and the document's size and checksum.
	ApplyUploadLease(ctx context.Context, req UploadLeaseRequest) (*UploadLease, error)
	// TransmitBytes sends raw document bytes to the lease URL, honoring
	// the lease's method and header set verbatim.
	TransmitBytes(ctx context.Context, lease *UploadLease, content []byte) error
	// RegisterFile registers uploaded content against a category and
	// returns the remote file id.
	RegisterFile(ctx context.Context, categoryID, leaseID, parser string) (string, error)
	// SubmitIndexIngestion submits registered files to an index and
	// returns the ingestion job id.
	SubmitIndexIngestion(ctx context.Context, indexID, sourceType string, fileIDs []string) (string, error)
	// DeleteRemoteFile removes a file from the remote store.
	DeleteRemoteFile(ctx context.Context, fileID string) error
	// SimilaritySearch queries an index for passages similar to the query.
	SimilaritySearch(ctx context.Context, indexID, query string, topK int) (*SearchResponse, error)
	// CreateRemoteIndex provisions a new index and returns its id.
	// The remote API limits names to 20 characters.
	CreateRemoteIndex(ctx context.Context, name, embeddingModel, description string) (string, error)
}

// HTTPClient implements Client against the service's JSON API.
type HTTPClient struct {
	BaseURL     string
	APIKey      string
	WorkspaceID string
	client      *http.Client
}

// NewHTTPClient creates a client for the remote knowledge base API.
func NewHTTPClient(baseURL, apiKey, workspaceID string) *HTTPClient {
	return &HTTPClient{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		WorkspaceID: workspaceID,
		client:      &http.Client{Timeout: defaultTimeout},
	}
}

// envelope is the common response wrapper of the remote API. Success may
// be false on a 200 response; that still counts as a failure.
type envelope struct {
	RequestID string          `json:"requestId"`
	Success   *bool           `json:"success"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// ApplyUploadLease requests an upload credential.
func (c *HTTPClient) ApplyUploadLease(ctx context.Context, req UploadLeaseRequest) (*UploadLease, error) {
	payload := map[string]any{
		"categoryId":   req.CategoryID,
		"categoryType": "UNSTRUCTURED",
		"fileName":     req.FileName,
		"md5":          req.MD5,
		"sizeBytes":    req.SizeBytes,
	}

	var lease UploadLease
	if err := c.do(ctx, http.MethodPost, c.workspacePath("upload-leases"), payload, &lease); err != nil {
		return nil, err
	}
	if lease.URL == "" {
		return nil, fmt.Errorf("no upload URL in lease response")
	}
	return &lease, nil
}

// TransmitBytes sends raw document bytes to the lease URL. The lease's
// method (PUT vs POST) and headers are applied verbatim; adding or
// reordering headers can invalidate the signed URL.
func (c *HTTPClient) TransmitBytes(ctx context.Context, lease *UploadLease, content []byte) error {
	method := http.MethodPost
	if lease.Method != "" {
		method = lease.Method
	}

	req, err := http.NewRequestWithContext(ctx, method, lease.URL, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	for key, value := range lease.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload content: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// RegisterFile registers uploaded content and returns the remote file id.
func (c *HTTPClient) RegisterFile(ctx context.Context, categoryID, leaseID, parser string) (string, error) {
	payload := map[string]any{
		"categoryId": categoryID,
		"leaseId":    leaseID,
		"parser":     parser,
	}

	var data struct {
		FileID string `json:"fileId"`
	}
	if err := c.do(ctx, http.MethodPost, c.workspacePath("files"), payload, &data); err != nil {
		return "", err
	}
	if data.FileID == "" {
		return "", fmt.Errorf("no fileId in register response")
	}
	return data.FileID, nil
}

// SubmitIndexIngestion submits registered files to an index.
func (c *HTTPClient) SubmitIndexIngestion(ctx context.Context, indexID, sourceType string, fileIDs []string) (string, error) {
	payload := map[string]any{
		"sourceType":  sourceType,
		"documentIds": fileIDs,
	}

	var data struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, c.workspacePath("indexes/"+indexID+"/documents"), payload, &data); err != nil {
		return "", err
	}
	return data.JobID, nil
}

// DeleteRemoteFile removes a file from the remote store.
func (c *HTTPClient) DeleteRemoteFile(ctx context.Context, fileID string) error {
	return c.do(ctx, http.MethodDelete, c.workspacePath("files/"+fileID), nil, nil)
}

// SimilaritySearch queries an index for passages similar to the query.
func (c *HTTPClient) SimilaritySearch(ctx context.Context, indexID, query string, topK int) (*SearchResponse, error) {
	payload := map[string]any{
		"query":               query,
		"denseSimilarityTopK": topK,
	}

	var data struct {
		Nodes []SearchNode `json:"nodes"`
	}
	requestID, err := c.doWithRequestID(ctx, http.MethodPost, c.workspacePath("indexes/"+indexID+"/retrieve"), payload, &data)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{RequestID: requestID, Nodes: data.Nodes}, nil
}

// CreateRemoteIndex provisions a new index and returns its id.
func (c *HTTPClient) CreateRemoteIndex(ctx context.Context, name, embeddingModel, description string) (string, error) {
	payload := map[string]any{
		"name":               name,
		"structureType":      "unstructured",
		"sinkType":           "DEFAULT",
		"sourceType":         "DATA_CENTER_FILE",
		"embeddingModelName": embeddingModel,
		"description":        description,
	}

	var data struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.workspacePath("indexes"), payload, &data); err != nil {
		return "", err
	}
	if data.ID == "" {
		return "", fmt.Errorf("no index id in create response")
	}
	return data.ID, nil
}

func (c *HTTPClient) workspacePath(suffix string) string {
	return fmt.Sprintf("%s/v2/workspaces/%s/%s", c.BaseURL, c.WorkspaceID, suffix)
}

// do sends a JSON request and decodes the envelope's data into out.
func (c *HTTPClient) do(ctx context.Context, method, url string, payload, out any) error {
	_, err := c.doWithRequestID(ctx, method, url, payload, out)
	return err
}

func (c *HTTPClient) doWithRequestID(ctx context.Context, method, url string, payload, out any) (string, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if resp.StatusCode != http.StatusOK {
		// Try to surface the embedded code/message when present.
		if json.Unmarshal(raw, &env) == nil && env.Code != "" {
			return env.RequestID, fmt.Errorf("bad status %d: %s - %s", resp.StatusCode, env.Code, env.Message)
		}
		return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	// A 200 with an embedded failure flag is still a failure.
	if env.Success != nil && !*env.Success {
		return env.RequestID, fmt.Errorf("%w: %s - %s", ErrRemoteApplication, env.Code, env.Message)
	}

	if out != nil {
		if len(env.Data) == 0 {
			return env.RequestID, fmt.Errorf("empty data in response")
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.RequestID, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return env.RequestID, nil
}
