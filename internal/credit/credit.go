// Package credit implements the credit manager: hasEnough/record
// against a per-organization compute-credit counter, backed by a Redis
// INCRBY counter, with subscription and overage rules layered on top.
package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidOrganizationID = errors.New("organization ID cannot be empty")

// SubscriptionStatus is the organization's billing state.
type SubscriptionStatus string

const (
	SubscriptionNone SubscriptionStatus = ""
	SubscriptionActive SubscriptionStatus = "active"
	SubscriptionTrial SubscriptionStatus = "trial"
)

// CheckParams is hasEnough's input
type CheckParams struct {
	OrganizationID string
	ComputeCredits uint
	EstimatedUsage uint
	Subscription SubscriptionStatus
	OverageLimit *uint // nil means unlimited for an active subscription
	DevelopmentMode bool
}

// Manager is the credit manager, backed by a Redis counter (no TTL:
// compute credits are cumulative for the organization's lifetime
// until reset externally).
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

func (m *Manager) key(organizationID string) string {
	return fmt.Sprintf("credit:%s:usage", organizationID)
}

// HasEnough implements the hasEnough policy exactly: dev mode
// always allows; an active subscription with no overage limit is
// unlimited, otherwise blocks once usage exceeds credits by the
// overage limit; trial organizations must stay within computeCredits
// including the estimate.
func (m *Manager) HasEnough(ctx context.Context, p CheckParams) (bool, error) {
	if p.OrganizationID == "" {
		return false, ErrInvalidOrganizationID
	}
	if p.DevelopmentMode {
		return true, nil
	}

	current, err := m.currentUsage(ctx, p.OrganizationID)
	if err != nil {
		return false, err
	}

	if p.Subscription == SubscriptionActive {
		if p.OverageLimit == nil {
			return true, nil
		}
		var overage uint
		if current > p.ComputeCredits {
			overage = current - p.ComputeCredits
		}
		return overage < *p.OverageLimit, nil
	}

	return current+p.EstimatedUsage <= p.ComputeCredits, nil
}

// Record atomically adds usage to the organization's cumulative
// counter via INCRBY.
func (m *Manager) Record(ctx context.Context, organizationID string, usage uint) error {
	if organizationID == "" {
		return ErrInvalidOrganizationID
	}
	if usage == 0 {
		return nil
	}
	if err := m.client.IncrBy(ctx, m.key(organizationID), int64(usage)).Err(); err != nil {
		return fmt.Errorf("credit: record usage: %w", err)
	}
	return nil
}

func (m *Manager) currentUsage(ctx context.Context, organizationID string) (uint, error) {
	count, err := m.client.Get(ctx, m.key(organizationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("credit: get usage: %w", err)
	}
	if count < 0 {
		count = 0
	}
	return uint(count), nil
}

// InsufficientCreditsError is fatal: no node runs.
type InsufficientCreditsError struct {
	OrganizationID string
	EstimatedUsage uint
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("organization %s lacks sufficient credits for estimated usage %d", e.OrganizationID, e.EstimatedUsage)
}
