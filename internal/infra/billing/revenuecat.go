package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/infra/config"
)

// Client talks to the RevenueCat REST API. Account identifiers double as
// RevenueCat app user ids, so no mapping table is needed.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient constructs a RevenueCat API client.
func NewClient(cfg config.BillingSettings, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

type subscriberInfo struct {
	Subscriber subscriber `json:"subscriber"`
}

type subscriber struct {
	OriginalAppUserID string                  `json:"original_app_user_id"`
	Entitlements      map[string]entitlement  `json:"entitlements"`
	Subscriptions     map[string]subscription `json:"subscriptions"`
}

type entitlement struct {
	ExpiresDate       *string `json:"expires_date"`
	ProductIdentifier string  `json:"product_identifier"`
	PurchaseDate      string  `json:"purchase_date"`
}

type subscription struct {
	ExpiresDate             *string `json:"expires_date"`
	PurchaseDate            string  `json:"purchase_date"`
	OriginalPurchaseDate    string  `json:"original_purchase_date"`
	PeriodType              string  `json:"period_type"`
	Store                   string  `json:"store"`
	IsSandbox               bool    `json:"is_sandbox"`
	UnsubscribeDetectedAt   *string `json:"unsubscribe_detected_at"`
	BillingIssuesDetectedAt *string `json:"billing_issues_detected_at"`
	OwnershipType           string  `json:"ownership_type"`
}

// FetchSubscriberState retrieves the subscriber and reduces entitlements and
// subscriptions to the reconciled state stored on the account.
func (c *Client) FetchSubscriberState(ctx context.Context, appUserID string) (*domain.SubscriberState, error) {
	var info subscriberInfo
	endpoint := fmt.Sprintf("%s/subscribers/%s", c.baseURL, url.PathEscape(appUserID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &info); err != nil {
		return nil, err
	}

	now := c.now()

	tier := domain.AccountTypeTrialRegistered
	if c.entitlementActive(info.Subscriber.Entitlements, "professional", now) {
		tier = domain.AccountTypeProfessional
	} else if c.entitlementActive(info.Subscriber.Entitlements, "individual", now) {
		tier = domain.AccountTypeIndividual
	}

	state := domain.SubscriberState{
		AccountType: tier,
		IsActive:    tier != domain.AccountTypeTrialRegistered,
	}

	activeProductID, active := mostRecentActiveSubscription(info.Subscriber.Subscriptions, now)
	if active != nil {
		period := domain.BillingPeriodMonthly
		if _, catalogPeriod, ok := domain.ProductPlanInfo(activeProductID); ok {
			period = catalogPeriod
		} else if strings.Contains(activeProductID, "yearly") {
			// Product ids outside the catalogue still carry the cycle in their name.
			period = domain.BillingPeriodYearly
		}
		state.BillingPeriod = &period

		state.ExpiresAt = parseTimePtr(active.ExpiresDate)

		if platform, ok := domain.PlatformFromStore(active.Store); ok {
			state.Platform = &platform
		}

		// Billing issues keep access alive until the store gives up on retries.
		if active.BillingIssuesDetectedAt != nil {
			if expires := parseTimePtr(active.ExpiresDate); expires != nil && expires.After(now) {
				state.InGracePeriod = true
			}
		}
	}

	return &state, nil
}

// LinkPurchase attaches a store receipt to the subscriber.
func (c *Client) LinkPurchase(ctx context.Context, appUserID, receiptToken string, isRestore bool) error {
	payload := map[string]any{
		"app_user_id": appUserID,
		"fetch_token": receiptToken,
		"is_restore":  isRestore,
	}
	endpoint := fmt.Sprintf("%s/receipts", c.baseURL)
	return c.do(ctx, http.MethodPost, endpoint, payload, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal billing request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build billing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call billing provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("billing provider returned %d: %s", resp.StatusCode, string(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode billing response: %w", err)
	}
	return nil
}

func (c *Client) entitlementActive(entitlements map[string]entitlement, name string, now time.Time) bool {
	ent, ok := entitlements[name]
	if !ok {
		return false
	}
	expires := parseTimePtr(ent.ExpiresDate)
	return expires != nil && expires.After(now)
}

func mostRecentActiveSubscription(subscriptions map[string]subscription, now time.Time) (string, *subscription) {
	var (
		bestID string
		best   *subscription
	)
	for productID := range subscriptions {
		sub := subscriptions[productID]
		expires := parseTimePtr(sub.ExpiresDate)
		if expires == nil || !expires.After(now) {
			continue
		}
		if best == nil || sub.PurchaseDate > best.PurchaseDate {
			copied := sub
			best = &copied
			bestID = productID
		}
	}
	return bestID, best
}

func parseTimePtr(value *string) *time.Time {
	if value == nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// VerifyWebhookAuthorization checks the bearer secret RevenueCat sends with
// webhook deliveries.
func VerifyWebhookAuthorization(authorizationHeader, webhookSecret string) bool {
	return webhookSecret != "" && authorizationHeader == "Bearer "+webhookSecret
}

var _ port.SubscriberGateway = (*Client)(nil)
