// Package cosmos adapts the Cosmos DB SQL API stored-procedure REST
// resources to remote.Directory.
//
// Requests are signed with the account master key. The transport retries
// connection errors, 429 and 5xx responses; 404 and 409 are returned to the
// caller as remote.ErrNotFound and remote.ErrConflict.
package cosmos

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
)

// APIVersion is the REST API version sent in x-ms-version.
const APIVersion = "2018-12-31"

const (
	headerDate         = "x-ms-date"
	headerVersion      = "x-ms-version"
	headerContinuation = "x-ms-continuation"
	resourceSprocs     = "sprocs"
)

// Config holds the account connection settings.
type Config struct {
	// Endpoint is the account URI, e.g. https://myaccount.documents.azure.com:443/
	Endpoint string
	// Key is the base64 master key.
	Key string
	// Database is the database id holding the collections.
	Database string
	// RetryMax bounds transport retries per request.
	RetryMax int
	// Logger receives retry diagnostics. Optional.
	Logger *zap.Logger
}

// Client talks to one Cosmos DB database.
type Client struct {
	endpoint *url.URL
	key      []byte
	database string
	http     *retryablehttp.Client
	now      func() time.Time
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	endpoint, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if endpoint.Scheme != "https" && endpoint.Scheme != "http" {
		return nil, fmt.Errorf("endpoint must be an http(s) URL: %q", cfg.Endpoint)
	}
	key, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = leveledLogger{cfg.Logger.Sugar()}
	}

	return &Client{
		endpoint: endpoint,
		key:      key,
		database: cfg.Database,
		http:     rc,
		now:      time.Now,
	}, nil
}

// Collection returns the directory of stored procedures in one collection.
func (c *Client) Collection(name string) *Collection {
	return &Collection{client: c, name: name}
}

// Collection implements remote.Directory for one Cosmos collection.
type Collection struct {
	client *Client
	name   string
}

var _ remote.Directory = (*Collection)(nil)

type sprocList struct {
	StoredProcedures []procedure.Record `json:"StoredProcedures"`
	Count            int                `json:"_count"`
}

// ListExisting returns every stored procedure id, following continuation
// tokens until the listing is complete.
func (c *Collection) ListExisting(ctx context.Context) ([]string, error) {
	link := c.link()
	var ids []string
	continuation := ""
	for {
		headers := map[string]string{}
		if continuation != "" {
			headers[headerContinuation] = continuation
		}
		resp, err := c.client.do(ctx, http.MethodGet, link+"/"+resourceSprocs, resourceSprocs, link, nil, headers)
		if err != nil {
			return nil, err
		}
		var page sprocList
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding stored procedure list: %w", err)
		}
		for _, sp := range page.StoredProcedures {
			ids = append(ids, sp.ID)
		}
		continuation = resp.Header.Get(headerContinuation)
		if continuation == "" {
			return ids, nil
		}
	}
}

// Create posts a new stored procedure.
func (c *Collection) Create(ctx context.Context, rec procedure.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	link := c.link()
	resp, err := c.client.do(ctx, http.MethodPost, link+"/"+resourceSprocs, resourceSprocs, link, body, nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Replace puts the stored procedure with rec.ID.
func (c *Collection) Replace(ctx context.Context, rec procedure.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	link := c.link() + "/" + resourceSprocs + "/" + rec.ID
	resp, err := c.client.do(ctx, http.MethodPut, link, resourceSprocs, link, body, nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func (c *Collection) link() string {
	return "dbs/" + c.client.database + "/colls/" + c.name
}

// do sends a signed request and returns the response for 2xx statuses.
// Other statuses are converted to *APIError and the body is closed.
func (c *Client) do(ctx context.Context, method, path, resourceType, resourceLink string, body []byte, headers map[string]string) (*http.Response, error) {
	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawPath = ""

	var payload any
	if body != nil {
		payload = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	date := c.now().UTC().Format(http.TimeFormat)
	req.Header.Set("Authorization", c.authorization(method, resourceType, resourceLink, date))
	req.Header.Set(headerDate, date)
	req.Header.Set(headerVersion, APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, resourceLink, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, newAPIError(resp)
}

// authorization computes the master-key token:
//
//	type=master&ver=1.0&sig=base64(HMAC-SHA256(key, verb\ntype\nlink\ndate\n\n))
func (c *Client) authorization(verb, resourceType, resourceLink, date string) string {
	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		resourceLink + "\n" +
		strings.ToLower(date) + "\n" +
		"" + "\n"
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return url.QueryEscape("type=master&ver=1.0&sig=" + sig)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func newAPIError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		e.Code = body.Code
		e.Message = body.Message
	} else {
		e.Message = strings.TrimSpace(string(data))
	}
	return e
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("cosmos: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("cosmos: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps conflict and not-found statuses onto the remote sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusConflict:
		return remote.ErrConflict
	case http.StatusNotFound:
		return remote.ErrNotFound
	}
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
