package escrasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Escra HTTP API client.
type Client struct {
	// BaseURL includes the API base path, e.g. http://127.0.0.1:8080/api.
	BaseURL     string
	BearerToken string
	// UserName is sent as X-User-Name when no token is set. Servers honour it
	// only in development mode, as they do UserRole (X-User-Role).
	UserName   string
	UserRole   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Party struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

// Contract represents the API contract model.
type Contract struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Status        string   `json:"status"`
	Parties       []Party  `json:"parties"`
	Assignee      string   `json:"assignee,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Description   string   `json:"description,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	CreatedBy     string   `json:"created_by,omitempty"`
	SharedWith    []string `json:"shared_with,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

type Recipient struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Status   string `json:"status,omitempty"`
	SignedAt string `json:"signed_at,omitempty"`
}

// SignatureRequest represents the API signature request model.
type SignatureRequest struct {
	ID         string      `json:"id"`
	Document   string      `json:"document"`
	DocumentID string      `json:"document_id,omitempty"`
	Parties    []string    `json:"parties"`
	Status     string      `json:"status"`
	Signatures string      `json:"signatures"`
	ContractID string      `json:"contract_id"`
	Contract   string      `json:"contract"`
	Assignee   string      `json:"assignee"`
	DateSent   string      `json:"date_sent"`
	DueDate    string      `json:"due_date,omitempty"`
	Subject    string      `json:"subject,omitempty"`
	Message    string      `json:"message,omitempty"`
	Provider   string      `json:"provider"`
	Recipients []Recipient `json:"recipients"`
	CreatedAt  string      `json:"created_at"`
	UpdatedAt  string      `json:"updated_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListOptions maps to the list query parameters. Zero values are omitted.
type ListOptions struct {
	Query     string
	Statuses  []string
	Assignees []string
	Contracts []string
	Sender    string
	Tab       string
	Sort      string
	Dir       string
	Limit     int
	Offset    int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("q", o.Query)
	set("sender", o.Sender)
	set("tab", o.Tab)
	set("sort", o.Sort)
	set("dir", o.Dir)
	for _, s := range o.Statuses {
		v.Add("status", s)
	}
	for _, a := range o.Assignees {
		v.Add("assignee", a)
	}
	for _, c := range o.Contracts {
		v.Add("contract", c)
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	return v
}

type SignatureList struct {
	Signatures []SignatureRequest `json:"signatures"`
	Total      int                `json:"total"`
}

type ContractList struct {
	Contracts []Contract `json:"contracts"`
	Total     int        `json:"total"`
}

// ListSignatures returns signature requests projected by the server.
func (c *Client) ListSignatures(ctx context.Context, opts ListOptions) (SignatureList, error) {
	var resp SignatureList
	err := c.do(ctx, http.MethodGet, withQuery("signatures", opts.values()), nil, &resp)
	return resp, err
}

// ListContracts returns contracts projected by the server.
func (c *Client) ListContracts(ctx context.Context, opts ListOptions) (ContractList, error) {
	var resp ContractList
	err := c.do(ctx, http.MethodGet, withQuery("contracts", opts.values()), nil, &resp)
	return resp, err
}

type CreateContractInput struct {
	Title         string   `json:"title"`
	Type          string   `json:"type,omitempty"`
	Parties       []Party  `json:"parties,omitempty"`
	Assignee      string   `json:"assignee,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Description   string   `json:"description,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	SharedWith    []string `json:"shared_with,omitempty"`
}

func (c *Client) CreateContract(ctx context.Context, in CreateContractInput) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPost, "contracts", in, &resp)
	return resp, err
}

type CreateSignatureInput struct {
	ContractID string      `json:"contract_id"`
	Document   string      `json:"document,omitempty"`
	DocumentID string      `json:"document_id,omitempty"`
	Recipients []Recipient `json:"recipients"`
	DueDate    string      `json:"due_date,omitempty"`
	Subject    string      `json:"subject,omitempty"`
	Message    string      `json:"message,omitempty"`
	Provider   string      `json:"provider,omitempty"`
}

func (c *Client) CreateSignature(ctx context.Context, in CreateSignatureInput) (SignatureRequest, error) {
	var resp SignatureRequest
	err := c.do(ctx, http.MethodPost, "signatures", in, &resp)
	return resp, err
}

func (c *Client) DeleteContract(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "contracts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DeleteSignature(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "signatures/"+url.PathEscape(id), nil, nil)
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserName != "":
		req.Header.Set("X-User-Name", c.UserName)
		if c.UserRole != "" {
			req.Header.Set("X-User-Role", c.UserRole)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
