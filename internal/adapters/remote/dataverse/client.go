// Package dataverse is a typed client for one OData v4 entity set on a
// Dataverse-style remote store. Every operation takes its bearer token as an
// explicit parameter and performs exactly one request: no retries, no
// ambient credential lookup.
package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ycnlabs/prospect/internal/domain"
)

const (
	defaultAPIVersion = "v9.2"
	defaultEntitySet  = "ycn_leads"

	// listQuery restricts reads to active records, newest first.
	listQuery = "$select=ycn_leadid,ycn_name,ycn_rating,createdon,modifiedon,_ownerid_value" +
		"&$filter=statecode%20eq%200" +
		"&$orderby=createdon%20desc"
	selectQuery = "$select=ycn_leadid,ycn_name,ycn_rating,createdon,modifiedon,_ownerid_value"
)

// entityIDPattern extracts the record id from an OData-EntityId header.
var entityIDPattern = regexp.MustCompile(`\(([^)]+)\)`)

// Config carries remote API coordinates.
type Config struct {
	BaseURL    string
	APIVersion string
	EntitySet  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger attaches a runtime logger.
func WithLogger(logger *charmLog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestIDGenerator overrides client-request-id generation, for tests.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.requestID = gen
		}
	}
}

// Client issues authenticated requests against the lead entity set.
type Client struct {
	baseURL    string
	apiVersion string
	entitySet  string
	http       *http.Client
	logger     *charmLog.Logger
	requestID  func() string
}

// NewClient builds a client for one remote organization.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote base url is required")
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	entitySet := strings.TrimSpace(cfg.EntitySet)
	if entitySet == "" {
		entitySet = defaultEntitySet
	}
	c := &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		entitySet:  entitySet,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     charmLog.New(io.Discard),
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// leadRecord is the wire shape of one lead.
type leadRecord struct {
	ID         string `json:"ycn_leadid"`
	Name       string `json:"ycn_name"`
	Rating     int    `json:"ycn_rating"`
	CreatedOn  string `json:"createdon"`
	ModifiedOn string `json:"modifiedon"`
	OwnerID    string `json:"_ownerid_value"`
}

// listEnvelope is the OData collection wrapper.
type listEnvelope struct {
	Value []leadRecord `json:"value"`
}

// odataError is the OData error payload shape.
type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// List fetches active leads ordered by creation time, descending.
func (c *Client) List(ctx context.Context, token string) ([]domain.Lead, error) {
	resp, err := c.do(ctx, token, http.MethodGet, c.collectionURL()+"?"+listQuery, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	var envelope listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode lead list: %w", err)
	}
	leads := make([]domain.Lead, 0, len(envelope.Value))
	for _, record := range envelope.Value {
		leads = append(leads, record.toLead())
	}
	return leads, nil
}

// Get fetches one lead by id.
func (c *Client) Get(ctx context.Context, token, id string) (domain.Lead, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Lead{}, domain.ErrInvalidID
	}
	resp, err := c.do(ctx, token, http.MethodGet, c.recordURL(id)+"?"+selectQuery, nil, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return domain.Lead{}, readError(resp)
	}
	var record leadRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return domain.Lead{}, fmt.Errorf("decode lead: %w", err)
	}
	return record.toLead(), nil
}

// Create validates locally, then creates the lead remotely. Invalid input
// never reaches the network. The server assigns the identifier and both
// timestamps.
func (c *Client) Create(ctx context.Context, token, name string, rating domain.Rating) (domain.Lead, error) {
	input, err := domain.NewLeadInput(name, rating)
	if err != nil {
		return domain.Lead{}, err
	}
	body, err := json.Marshal(map[string]any{
		"ycn_name":   input.Name,
		"ycn_rating": int(input.Rating),
	})
	if err != nil {
		return domain.Lead{}, fmt.Errorf("encode lead: %w", err)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	resp, err := c.do(ctx, token, http.MethodPost, c.collectionURL(), bytes.NewReader(body), headers)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var record leadRecord
		if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
			return domain.Lead{}, fmt.Errorf("decode created lead: %w", err)
		}
		return record.toLead(), nil
	case http.StatusNoContent:
		// Some deployments ignore the representation preference; fall back
		// to the id header and a follow-up read.
		id, ok := entityIDFromHeader(resp.Header.Get("OData-EntityId"))
		if !ok {
			return domain.Lead{}, fmt.Errorf("create reply missing entity id")
		}
		return c.Get(ctx, token, id)
	default:
		return domain.Lead{}, readError(resp)
	}
}

// UpdateRating changes one lead's rating in place. The entity exposes no
// concurrency token, so the write is an unconditional overwrite; a 412 from
// stricter deployments still surfaces as ErrConflict.
func (c *Client) UpdateRating(ctx context.Context, token, id string, rating domain.Rating) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrInvalidID
	}
	if !rating.Valid() {
		return domain.ErrInvalidRating
	}
	body, err := json.Marshal(map[string]any{"ycn_rating": int(rating)})
	if err != nil {
		return fmt.Errorf("encode rating update: %w", err)
	}
	headers := map[string]string{"If-Match": "*"}
	resp, err := c.do(ctx, token, http.MethodPatch, c.recordURL(id), bytes.NewReader(body), headers)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

// Delete removes one lead. A missing record surfaces as ErrNotFound so the
// caller can decide whether net-effect success is good enough.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrInvalidID
	}
	resp, err := c.do(ctx, token, http.MethodDelete, c.recordURL(id), nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

// WhoAmI probes the connection and token validity.
func (c *Client) WhoAmI(ctx context.Context, token string) error {
	resp, err := c.do(ctx, token, http.MethodGet, c.apiRoot()+"/WhoAmI", nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

func (c *Client) apiRoot() string {
	return c.baseURL + "/api/data/" + c.apiVersion
}

func (c *Client) collectionURL() string {
	return c.apiRoot() + "/" + c.entitySet
}

func (c *Client) recordURL(id string) string {
	return c.collectionURL() + "(" + id + ")"
}

// do issues one request with the OData and authorization headers attached.
func (c *Client) do(ctx context.Context, token, method, url string, body io.Reader, extra map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	requestID := c.requestID()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ms-client-request-id", requestID)
	for key, value := range extra {
		req.Header.Set(key, value)
	}
	c.logger.Debug("remote request", "method", method, "url", url, "request_id", requestID)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

// readError converts a non-success reply into a StatusError.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload odataError
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return &StatusError{Status: resp.StatusCode, Code: payload.Error.Code, Message: payload.Error.Message}
	}
	return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// entityIDFromHeader pulls the record id out of an OData-EntityId value.
func entityIDFromHeader(header string) (string, bool) {
	match := entityIDPattern.FindStringSubmatch(header)
	if len(match) != 2 || match[1] == "" {
		return "", false
	}
	return match[1], true
}

// toLead converts wire fields into the domain entity.
func (r leadRecord) toLead() domain.Lead {
	return domain.Lead{
		ID:         r.ID,
		Name:       r.Name,
		Rating:     domain.Rating(r.Rating),
		CreatedAt:  parseRemoteTime(r.CreatedOn),
		ModifiedAt: parseRemoteTime(r.ModifiedOn),
		OwnerID:    r.OwnerID,
	}
}

// parseRemoteTime accepts the store's timestamp renditions, with and without
// an explicit offset.
func parseRemoteTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
