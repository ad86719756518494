// pkg/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Network selects which account namespace's key registry to query.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

const (
	MainnetEndpoint = "https://api.fastnear.com"
	TestnetEndpoint = "https://test.api.fastnear.com"
)

var (
	// ErrAPIFailure covers every transport failure, non-success HTTP
	// status, and malformed response body. Callers cannot distinguish
	// these further; a flaky registry looks the same as a broken one.
	ErrAPIFailure = errors.New("API error or unexpected response")

	// ErrNotAssociated means the registry answered but did not list
	// the claimed account among the key's owners.
	ErrNotAssociated = errors.New("key not associated with account")
)

// Client queries the public-key registry that proves which accounts a
// key is currently authorized for. One attempt per call; retry policy
// belongs to the caller.
type Client struct {
	httpClient      *http.Client
	mainnetEndpoint string
	testnetEndpoint string
	log             *logrus.Logger
}

// Config controls Client construction. Zero values fall back to the
// public endpoints and a default HTTP client.
type Config struct {
	HTTPClient      *http.Client
	MainnetEndpoint string
	TestnetEndpoint string
	Logger          *logrus.Logger
}

// NewClient builds a registry client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Client{
		httpClient:      cfg.HTTPClient,
		mainnetEndpoint: cfg.MainnetEndpoint,
		testnetEndpoint: cfg.TestnetEndpoint,
		log:             cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.mainnetEndpoint == "" {
		c.mainnetEndpoint = MainnetEndpoint
	}
	if c.testnetEndpoint == "" {
		c.testnetEndpoint = TestnetEndpoint
	}
	if c.log == nil {
		c.log = logrus.New()
		c.log.SetLevel(logrus.WarnLevel)
	}
	return c
}

// NetworkForAccount derives the registry network from an account's
// namespace suffix.
func NetworkForAccount(accountID string) Network {
	if accountID == "testnet" || strings.HasSuffix(accountID, ".testnet") {
		return Testnet
	}
	return Mainnet
}

type keyOwnersResponse struct {
	AccountIDs []string `json:"account_ids"`
}

// AccountsForKey lists the accounts a public key is authorized for.
// With requireFullAccessKey the check is scoped to full-access keys;
// otherwise any access level counts.
func (c *Client) AccountsForKey(ctx context.Context, network Network, publicKey string, requireFullAccessKey bool) ([]string, error) {
	endpoint := c.mainnetEndpoint
	if network == Testnet {
		endpoint = c.testnetEndpoint
	}

	lookupURL := fmt.Sprintf("%s/v0/public_key/%s", endpoint, url.PathEscape(publicKey))
	if !requireFullAccessKey {
		lookupURL += "/all"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIFailure, err)
	}

	c.log.WithFields(logrus.Fields{
		"network":    network,
		"public_key": publicKey,
	}).Debug("Querying key registry")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPIFailure, resp.StatusCode)
	}

	var body keyOwnersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIFailure, err)
	}
	return body.AccountIDs, nil
}

// VerifyOwner confirms that publicKey is currently authorized to act
// for accountID, at the requested access level.
func (c *Client) VerifyOwner(ctx context.Context, accountID, publicKey string, requireFullAccessKey bool) error {
	owners, err := c.AccountsForKey(ctx, NetworkForAccount(accountID), publicKey, requireFullAccessKey)
	if err != nil {
		return err
	}

	for _, owner := range owners {
		if owner == accountID {
			return nil
		}
	}
	return fmt.Errorf("%w: account %q", ErrNotAssociated, accountID)
}
