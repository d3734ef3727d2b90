package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Client talks to the inspection backend.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/maquinaplus/fieldsync/internal/api Client
type Client interface {
	// Login exchanges credentials for a token pair.
	Login(ctx context.Context, username, password string) (*LoginResponse, error)

	// RefreshToken exchanges a refresh token for a new access token.
	RefreshToken(ctx context.Context, refreshToken string) (string, error)

	// ListMachines fetches the machine catalog.
	ListMachines(ctx context.Context) ([]MachineResponse, error)

	// ListOilBrands fetches the oil brand catalog.
	ListOilBrands(ctx context.Context) ([]OilBrandResponse, error)

	// SubmitInspection uploads one inspection form and returns the
	// server-assigned id.
	SubmitInspection(ctx context.Context, req *InspectionRequest) (int64, error)

	// SubmitImage uploads one image for an already-synced inspection.
	SubmitImage(ctx context.Context, inspectionID int64, filename string, data io.Reader) error

	// SubmitMotorOilChange uploads a motor oil change record.
	SubmitMotorOilChange(ctx context.Context, req *OilChangeRequest) error

	// SubmitHydraulicOilChange uploads a hydraulic oil change record.
	SubmitHydraulicOilChange(ctx context.Context, req *OilChangeRequest) error
}

const (
	pathLogin        = "v1/auth/login"
	pathTokenRefresh = "v1/auth/token/refresh"
	pathMachines     = "v1/machine"
	pathOilBrands    = "v1/oil/brand"
	pathInspections  = "v1/inspection"
	pathMotorOil     = "oil-changes/motor"
	pathHydraulicOil = "oil-changes/hydraulic"
)

type defaultClient struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*defaultClient)

// WithHTTPClient overrides the underlying HTTP client, typically to
// install the authenticating transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *defaultClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *defaultClient) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &defaultClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *defaultClient) url(path string) string {
	return c.baseURL + "/" + path
}

// errorFromResponse builds an HTTPError from a non-2xx response. The
// backend usually wraps errors as {"message": "..."}; anything else
// falls back to the raw body or the status text.
func errorFromResponse(resp *http.Response, url string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return NewHTTPError(resp.StatusCode, url, msg)
}

func (c *defaultClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp, c.url(path))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (c *defaultClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp, c.url(path))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (c *defaultClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.postJSON(ctx, pathLogin, &LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *defaultClient) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	var out RefreshResponse
	err := c.postJSON(ctx, pathTokenRefresh, &RefreshRequest{RefreshToken: refreshToken}, &out)
	if err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *defaultClient) ListMachines(ctx context.Context) ([]MachineResponse, error) {
	var out []MachineResponse
	if err := c.getJSON(ctx, pathMachines, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *defaultClient) ListOilBrands(ctx context.Context) ([]OilBrandResponse, error) {
	var out []OilBrandResponse
	if err := c.getJSON(ctx, pathOilBrands, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *defaultClient) SubmitInspection(ctx context.Context, req *InspectionRequest) (int64, error) {
	var out InspectionResponse
	if err := c.postJSON(ctx, pathInspections, req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *defaultClient) SubmitImage(ctx context.Context, inspectionID int64, filename string, data io.Reader) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("failed to read image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	path := fmt.Sprintf("%s/%d/image", pathInspections, inspectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp, c.url(path))
	}
	return nil
}

func (c *defaultClient) SubmitMotorOilChange(ctx context.Context, req *OilChangeRequest) error {
	return c.postJSON(ctx, pathMotorOil, req, nil)
}

func (c *defaultClient) SubmitHydraulicOilChange(ctx context.Context, req *OilChangeRequest) error {
	return c.postJSON(ctx, pathHydraulicOil, req, nil)
}
