package secrets

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
)

type stubAccessClient struct {
	payloads map[string]string
	err      error
	calls    []string
}

func (s *stubAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls = append(s.calls, req.GetName())
	if s.err != nil {
		return nil, s.err
	}
	payload, ok := s.payloads[req.GetName()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(payload)},
	}, nil
}

func TestIsRef(t *testing.T) {
	if !IsRef("secret://stripe-api-key") {
		t.Fatal("secret:// prefix must be detected")
	}
	if !IsRef("  secret://padded") {
		t.Fatal("leading whitespace must not hide a reference")
	}
	if IsRef("sk_live_plaintext") {
		t.Fatal("plain values are not references")
	}
}

func TestResolvePassesThroughPlainValues(t *testing.T) {
	client := &stubAccessClient{}
	fetcher := NewFetcher(client, "proj-1")

	got, err := fetcher.Resolve(context.Background(), "sk_live_plaintext")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_live_plaintext" {
		t.Fatalf("got %q", got)
	}
	if len(client.calls) != 0 {
		t.Fatal("plain values must not touch Secret Manager")
	}
}

func TestResolveExpandsShortReferences(t *testing.T) {
	client := &stubAccessClient{payloads: map[string]string{
		"projects/proj-1/secrets/stripe-api-key/versions/latest": "sk_live_abc",
		"projects/proj-1/secrets/webhook-secret/versions/3":      "whsec_xyz",
	}}
	fetcher := NewFetcher(client, "proj-1")

	got, err := fetcher.Resolve(context.Background(), "secret://stripe-api-key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_live_abc" {
		t.Fatalf("got %q", got)
	}

	got, err = fetcher.Resolve(context.Background(), "secret://webhook-secret@3")
	if err != nil {
		t.Fatalf("pinned version resolve returned error: %v", err)
	}
	if got != "whsec_xyz" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveAcceptsFullyQualifiedReferences(t *testing.T) {
	name := "projects/other-proj/secrets/key/versions/7"
	client := &stubAccessClient{payloads: map[string]string{name: "value"}}
	fetcher := NewFetcher(client, "proj-1")

	got, err := fetcher.Resolve(context.Background(), RefScheme+name)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "value" {
		t.Fatalf("got %q", got)
	}
	if len(client.calls) != 1 || client.calls[0] != name {
		t.Fatalf("resource name rewritten: %v", client.calls)
	}
}

func TestResolveCachesPayloads(t *testing.T) {
	client := &stubAccessClient{payloads: map[string]string{
		"projects/proj-1/secrets/key/versions/latest": "value",
	}}
	fetcher := NewFetcher(client, "proj-1")

	for i := 0; i < 3; i++ {
		if _, err := fetcher.Resolve(context.Background(), "secret://key"); err != nil {
			t.Fatal(err)
		}
	}
	if len(client.calls) != 1 {
		t.Fatalf("access calls = %d, want 1 (cached)", len(client.calls))
	}
}

func TestResolveRejectsEmptyPayload(t *testing.T) {
	client := &stubAccessClient{payloads: map[string]string{
		"projects/proj-1/secrets/blank/versions/latest": "   ",
	}}
	fetcher := NewFetcher(client, "proj-1")

	if _, err := fetcher.Resolve(context.Background(), "secret://blank"); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("err = %v, want ErrEmptySecret", err)
	}
}

func TestResolveWrapsAccessFailures(t *testing.T) {
	client := &stubAccessClient{err: errors.New("permission denied")}
	fetcher := NewFetcher(client, "proj-1")

	if _, err := fetcher.Resolve(context.Background(), "secret://key"); err == nil {
		t.Fatal("access failure must surface")
	}
}
