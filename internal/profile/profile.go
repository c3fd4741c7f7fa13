// Package profile resolves member attributes from the profile store. The
// resolved MemberContext is fetched once per query and read-only thereafter.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fyrsmithlabs/pensiond/internal/config"
)

// ErrNotFound indicates the member does not exist in the profile store.
var ErrNotFound = errors.New("member not found")

// Account is a single retirement account held by a member.
type Account struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// MemberContext holds the member attributes needed to answer a query.
// Fetched once per query; never mutated after resolution.
type MemberContext struct {
	MemberID         string            `json:"member_id"`
	Age              int               `json:"age"`
	RetirementAge    int               `json:"retirement_age"`
	CountryCode      string            `json:"country_code"`
	EmploymentStatus string            `json:"employment_status"`
	AnnualSalary     float64           `json:"annual_salary"`
	ContributionRate float64           `json:"contribution_rate"`
	Accounts         []Account         `json:"accounts"`
	// Extra carries country-specific fields that have no common schema
	// (e.g. preservation age, catch-up eligibility).
	Extra map[string]string `json:"extra,omitempty"`
}

// TotalBalance returns the sum of balances across all accounts.
func (m MemberContext) TotalBalance() float64 {
	var total float64
	for _, a := range m.Accounts {
		total += a.Balance
	}
	return total
}

// Store resolves member contexts.
type Store interface {
	Fetch(ctx context.Context, memberID string) (MemberContext, error)
}

// NewStore creates a profile store from configuration. An empty BaseURL
// selects the in-process static store.
func NewStore(cfg config.ProfileConfig) Store {
	if cfg.BaseURL == "" {
		return NewStaticStore()
	}
	return NewHTTPStore(cfg)
}

// HTTPStore fetches member contexts from an external profile service.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a store backed by the profile service at cfg.BaseURL.
func NewHTTPStore(cfg config.ProfileConfig) *HTTPStore {
	timeout := 10 * time.Second
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}
	return &HTTPStore{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the member context for memberID.
func (s *HTTPStore) Fetch(ctx context.Context, memberID string) (MemberContext, error) {
	if memberID == "" {
		return MemberContext{}, fmt.Errorf("member ID cannot be empty")
	}

	reqURL := s.baseURL + "/v1/members/" + url.PathEscape(memberID)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return MemberContext{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return MemberContext{}, fmt.Errorf("fetching member profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return MemberContext{}, fmt.Errorf("%w: %s", ErrNotFound, memberID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return MemberContext{}, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var mc MemberContext
	if err := json.NewDecoder(resp.Body).Decode(&mc); err != nil {
		return MemberContext{}, fmt.Errorf("decoding member profile: %w", err)
	}
	if mc.MemberID == "" {
		mc.MemberID = memberID
	}

	return mc, nil
}

// StaticStore is an in-process store for local development and tests.
type StaticStore struct {
	mu      sync.RWMutex
	members map[string]MemberContext
}

// NewStaticStore creates an empty static store.
func NewStaticStore() *StaticStore {
	return &StaticStore{members: make(map[string]MemberContext)}
}

// Put adds or replaces a member context.
func (s *StaticStore) Put(mc MemberContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[mc.MemberID] = mc
}

// Fetch retrieves the member context for memberID.
func (s *StaticStore) Fetch(_ context.Context, memberID string) (MemberContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.members[memberID]
	if !ok {
		return MemberContext{}, fmt.Errorf("%w: %s", ErrNotFound, memberID)
	}
	return mc, nil
}

var (
	_ Store = (*HTTPStore)(nil)
	_ Store = (*StaticStore)(nil)
)
