package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
)

// BasicConfig configures username/password (or token) registry auth.
type BasicConfig struct {
	Registry string
	Username string
	Password string
	Token    string
}

// BasicProvider resolves static basic-auth credentials.
type BasicProvider struct {
	cfg BasicConfig
}

// NewBasicProvider creates a provider from static credentials.
func NewBasicProvider(cfg BasicConfig) *BasicProvider {
	return &BasicProvider{cfg: cfg}
}

// Match reports whether the provider handles the host.
func (p *BasicProvider) Match(host string) bool {
	return hostMatches(p.cfg.Registry, host)
}

// Resolve returns the encoded auth payload.
func (p *BasicProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	username := p.cfg.Username
	password := p.cfg.Password
	if username == "" && password == "" && p.cfg.Token != "" {
		username = "token"
		password = p.cfg.Token
	}
	if username == "" || password == "" {
		return "", nil
	}
	return encode(username, password, host), nil
}

// encode builds the base64 RegistryAuth payload Docker expects.
func encode(username, password, host string) string {
	payload := map[string]string{
		"username":      username,
		"password":      password,
		"serveraddress": host,
	}
	b, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(b)
}
