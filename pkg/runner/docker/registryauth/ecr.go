package registryauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// ECRConfig configures auth against AWS Elastic Container Registry.
type ECRConfig struct {
	// Registry is a host pattern, e.g. *.dkr.ecr.us-east-1.amazonaws.com.
	Registry string

	// Region overrides the region parsed from the registry host.
	Region string
}

// ECRProvider resolves short-lived ECR authorization tokens, caching them
// until shortly before expiry.
type ECRProvider struct {
	cfg   ECRConfig
	mu    sync.Mutex
	cache map[string]ecrToken
}

type ecrToken struct {
	username string
	password string
	expires  time.Time
}

// NewECRProvider creates an ECR credential provider.
func NewECRProvider(cfg ECRConfig) *ECRProvider {
	return &ECRProvider{cfg: cfg, cache: make(map[string]ecrToken)}
}

// Match reports whether the provider handles the host.
func (p *ECRProvider) Match(host string) bool {
	return hostMatches(p.cfg.Registry, host)
}

// Resolve returns the encoded auth payload, fetching a fresh token when the
// cached one is close to expiry.
func (p *ECRProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	p.mu.Lock()
	if tok, ok := p.cache[host]; ok && time.Until(tok.expires) > 5*time.Minute {
		p.mu.Unlock()
		return encode(tok.username, tok.password, host), nil
	}
	p.mu.Unlock()

	tok, err := p.fetch(ctx, host)
	if err != nil {
		return "", fmt.Errorf("ecr auth for %s: %w", host, err)
	}

	p.mu.Lock()
	p.cache[host] = tok
	p.mu.Unlock()
	return encode(tok.username, tok.password, host), nil
}

func (p *ECRProvider) fetch(ctx context.Context, host string) (ecrToken, error) {
	region := p.cfg.Region
	if region == "" {
		// Hosts look like <account>.dkr.ecr.<region>.amazonaws.com.
		parts := strings.Split(host, ".")
		if len(parts) >= 6 {
			region = parts[3]
		}
	}
	if region == "" {
		return ecrToken{}, fmt.Errorf("ecr: no region for host %s", host)
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return ecrToken{}, err
	}

	out, err := ecr.NewFromConfig(cfg).GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return ecrToken{}, err
	}
	if len(out.AuthorizationData) == 0 {
		return ecrToken{}, fmt.Errorf("ecr: empty auth data")
	}

	var chosen ecrtypes.AuthorizationData
	for _, ad := range out.AuthorizationData {
		if ad.ProxyEndpoint != nil && strings.Contains(*ad.ProxyEndpoint, host) {
			chosen = ad
			break
		}
	}
	if chosen.AuthorizationToken == nil {
		chosen = out.AuthorizationData[0]
	}

	raw, err := base64.StdEncoding.DecodeString(*chosen.AuthorizationToken)
	if err != nil {
		return ecrToken{}, err
	}
	username, password, found := strings.Cut(string(raw), ":")
	if !found {
		return ecrToken{}, fmt.Errorf("ecr: invalid token format")
	}

	expires := time.Now().Add(12 * time.Hour)
	if chosen.ExpiresAt != nil {
		expires = *chosen.ExpiresAt
	}
	return ecrToken{username: username, password: password, expires: expires}, nil
}
