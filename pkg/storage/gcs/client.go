package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	scope          = "https://www.googleapis.com/auth/devstorage.read_write"
	defaultBaseURL = "https://storage.googleapis.com"
	pingTimeout    = 5 * time.Second
	uploadTimeout  = 2 * time.Minute
)

// Client uploads objects to a single bucket through the GCS JSON API.
type Client struct {
	httpClient *http.Client
	bucket     string
	baseURL    string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Uploader is the write surface evidence storage depends on.
type Uploader interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (*Object, error)
}

// Object describes a stored object.
type Object struct {
	Bucket string
	Name   string
	Size   int64
	URL    string
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.EvidenceBucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	ts, err := credentialsTokenSource(ctx, gcp)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = uploadTimeout

	client := newClient(httpClient, cfg.EvidenceBucket, defaultBaseURL)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func newClient(httpClient *http.Client, bucket, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		bucket:     bucket,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func credentialsTokenSource(ctx context.Context, gcp config.GCPConfig) (oauth2.TokenSource, error) {
	switch {
	case gcp.CredentialsJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(gcp.CredentialsJSON), scope)
		if err != nil {
			return nil, fmt.Errorf("parsing service account credentials: %w", err)
		}
		return creds.TokenSource, nil
	case gcp.ApplicationCredentials != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, scope)
		if err != nil {
			return nil, fmt.Errorf("parsing credentials file: %w", err)
		}
		return creds.TokenSource, nil
	default:
		creds, err := google.FindDefaultCredentials(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("finding default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.httpClient == nil {
		return errors.New("gcs client not initialized")
	}
	if c.bucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.baseURL, url.PathEscape(c.bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return responseError("gcs object check failed", resp)
	}
	return nil
}

// Upload streams body into the bucket as a simple media upload.
func (c *Client) Upload(ctx context.Context, object, contentType string, body io.Reader) (*Object, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("gcs client not initialized")
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return nil, errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", object)
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.baseURL, url.PathEscape(c.bucket), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", object, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("gcs upload failed", resp)
	}

	var meta struct {
		Name string `json:"name"`
		Size string `json:"size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	name := meta.Name
	if name == "" {
		name = object
	}
	var size int64
	if meta.Size != "" {
		if _, err := fmt.Sscan(meta.Size, &size); err != nil {
			size = 0
		}
	}

	return &Object{
		Bucket: c.bucket,
		Name:   name,
		Size:   size,
		URL:    c.ObjectURL(name),
	}, nil
}

// ObjectURL is the canonical https location of an object in the bucket.
func (c *Client) ObjectURL(object string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, (&url.URL{Path: object}).EscapedPath())
}

func responseError(prefix string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(b) > 0 {
		return fmt.Errorf("%s: %s: %s", prefix, resp.Status, strings.TrimSpace(string(b)))
	}
	return fmt.Errorf("%s: %s", prefix, resp.Status)
}
