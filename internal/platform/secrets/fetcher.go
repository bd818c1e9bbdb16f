package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
)

const (
	// RefScheme prefixes configuration values resolved through Secret Manager.
	RefScheme = "secret://"

	defaultAccessTimeout = 5 * time.Second
)

// ErrEmptySecret is returned when a secret version resolves to no payload.
var ErrEmptySecret = errors.New("secrets: secret payload is empty")

// AccessClient is the narrow Secret Manager surface the fetcher depends on.
type AccessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// Fetcher resolves secret:// references against Secret Manager, caching
// payloads for the lifetime of the process.
type Fetcher struct {
	client    AccessClient
	projectID string
	timeout   time.Duration

	mu    sync.Mutex
	cache map[string]string
}

// NewFetcher wires a Fetcher around an existing Secret Manager client.
func NewFetcher(client AccessClient, projectID string) *Fetcher {
	return &Fetcher{
		client:    client,
		projectID: strings.TrimSpace(projectID),
		timeout:   defaultAccessTimeout,
		cache:     make(map[string]string),
	}
}

// NewClient dials the real Secret Manager API.
func NewClient(ctx context.Context) (*secretmanager.Client, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: create client: %w", err)
	}
	return client, nil
}

// IsRef reports whether value is a secret:// reference.
func IsRef(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), RefScheme)
}

// Resolve returns value unchanged unless it is a secret:// reference, in
// which case the referenced secret version payload is fetched.
func (f *Fetcher) Resolve(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	if !IsRef(value) {
		return value, nil
	}
	if f == nil || f.client == nil {
		return "", errors.New("secrets: fetcher not configured")
	}

	name := f.versionName(strings.TrimPrefix(value, RefScheme))

	f.mu.Lock()
	if cached, ok := f.cache[name]; ok {
		f.mu.Unlock()
		return cached, nil
	}
	f.mu.Unlock()

	accessCtx := ctx
	var cancel context.CancelFunc
	if f.timeout > 0 {
		accessCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.client.AccessSecretVersion(accessCtx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	payload := strings.TrimSpace(string(resp.GetPayload().GetData()))
	if payload == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, name)
	}

	f.mu.Lock()
	f.cache[name] = payload
	f.mu.Unlock()
	return payload, nil
}

// versionName expands short references ("stripe-api-key" or
// "stripe-api-key@3") into fully qualified version resource names. Fully
// qualified references pass through unchanged.
func (f *Fetcher) versionName(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "projects/") {
		return ref
	}
	secret, version, ok := strings.Cut(ref, "@")
	if !ok || strings.TrimSpace(version) == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, strings.TrimSpace(secret), strings.TrimSpace(version))
}
