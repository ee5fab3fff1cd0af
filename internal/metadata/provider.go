package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/satyamsundaram01/confsync/internal/domain"
	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/utils"
)

// Source says which metadata path produced the result.
type Source int

const (
	// SourcePrimary is the cloud identity document plus tag-lookup API.
	SourcePrimary Source = iota
	// SourceFallback is the internal "who am I" metadata service.
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is the structured outcome of a metadata fetch. Callers branch on
// Source instead of catching a fallback somewhere in the call chain.
type Result struct {
	Meta   *domain.HostMetadata
	Source Source
}

// Options carries the metadata endpoints. They are injectable so tests can
// point the provider at local servers.
type Options struct {
	IdentityURL   string        // instance-identity document (JSON)
	TagServiceURL string        // tag lookup API, filtered by instance id
	WhoamiURL     string        // fallback tags mapping service
	Timeout       time.Duration // per-request timeout
}

// Provider resolves the current host's identity and organizational tags,
// trying the cloud path first and an internal service as fallback.
type Provider struct {
	opts   Options
	client *http.Client
	logger logger.Logger
}

// NewProvider creates a metadata provider
func NewProvider(opts Options, log logger.Logger) *Provider {
	return &Provider{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: log,
	}
}

// identityDocument is the subset of the instance-identity document we use.
type identityDocument struct {
	InstanceID string `json:"instanceId"`
	Region     string `json:"region"`
}

// tagList is the tag-lookup API response: key/value pairs for one instance.
type tagList struct {
	Tags []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"tags"`
}

// Fetch resolves host metadata. The primary path is authoritative; when its
// response cannot be used (unreachable or unparsable), the fallback service
// is asked instead. Both failing is fatal to the current cycle only.
func (p *Provider) Fetch(ctx context.Context) (*Result, error) {
	meta, primaryErr := p.fetchPrimary(ctx)
	if primaryErr == nil {
		return &Result{Meta: meta, Source: SourcePrimary}, nil
	}

	p.logger.Warn("primary metadata source failed, trying fallback",
		logger.Error(primaryErr))

	meta, fallbackErr := p.fetchFallback(ctx)
	if fallbackErr == nil {
		return &Result{Meta: meta, Source: SourceFallback}, nil
	}

	return nil, fmt.Errorf("metadata unavailable: primary: %v; fallback: %w",
		primaryErr, fallbackErr)
}

// fetchPrimary reads the instance-identity document, then looks up the tags
// of that instance id.
func (p *Provider) fetchPrimary(ctx context.Context) (*domain.HostMetadata, error) {
	body, err := p.get(ctx, p.opts.IdentityURL)
	if err != nil {
		return nil, fmt.Errorf("identity document: %w", err)
	}

	var doc identityDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("identity document not parsable: %w", err)
	}
	if doc.InstanceID == "" {
		return nil, fmt.Errorf("identity document missing instanceId")
	}

	tagURL := fmt.Sprintf("%s?instance-id=%s",
		p.opts.TagServiceURL, url.QueryEscape(doc.InstanceID))
	body, err = p.get(ctx, tagURL)
	if err != nil {
		return nil, fmt.Errorf("tag lookup: %w", err)
	}

	var tl tagList
	if err := json.Unmarshal(body, &tl); err != nil {
		return nil, fmt.Errorf("tag response not parsable: %w", err)
	}

	tags := make(map[string]string, len(tl.Tags))
	for _, t := range tl.Tags {
		tags[t.Key] = t.Value
	}

	meta := &domain.HostMetadata{
		InstanceID: doc.InstanceID,
		Region:     doc.Region,
		Tags:       tags,
	}
	meta.ApplyFabTagDefault()
	return meta, nil
}

// fetchFallback asks the internal whoami service, whose body is the tags
// mapping itself.
func (p *Provider) fetchFallback(ctx context.Context) (*domain.HostMetadata, error) {
	body, err := p.get(ctx, p.opts.WhoamiURL)
	if err != nil {
		return nil, fmt.Errorf("whoami: %w", err)
	}

	var tags map[string]string
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("whoami response not parsable: %w", err)
	}

	meta := &domain.HostMetadata{Tags: tags}
	meta.ApplyFabTagDefault()
	return meta, nil
}

func (p *Provider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return io.ReadAll(resp.Body)
}
