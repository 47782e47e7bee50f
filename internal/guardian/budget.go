package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cortex/internal/logging"
)

const (
	warnThresholdPct  = 50
	alertThresholdPct = 80
	blockThresholdPct = 100
)

const (
	dailyCounterKey  = "cortex:guardian:tokens:daily"
	hourlyCounterKey = "cortex:guardian:tokens:hourly"
	resetDateKey     = "cortex:guardian:reset_date"
)

// BudgetTracker persists token-spend counters in Redis so they survive
// process restarts; an in-process fallback is used when Redis is
// unreachable, trading durability for availability.
type BudgetTracker struct {
	client          *redis.Client
	dailyBudget     int64
	fallbackDaily   int64
	fallbackHourly  int64
	fallbackDate    string
	usingFallback   bool
}

// NewBudgetTracker connects to redisURL (may be empty, disabling Redis and
// falling back to a process-local counter) and enforces dailyBudget tokens
// per day.
func NewBudgetTracker(redisURL string, dailyBudget int64) *BudgetTracker {
	t := &BudgetTracker{dailyBudget: dailyBudget, fallbackDate: time.Now().UTC().Format("2006-01-02")}
	if redisURL == "" {
		t.usingFallback = true
		return t
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logging.Get(logging.CategoryGuardian).Warn("BudgetTracker: invalid redis URL, using in-process fallback: %v", err)
		t.usingFallback = true
		return t
	}
	t.client = redis.NewClient(opts)
	return t
}

// Record adds tokens to both the daily and hourly counters and returns the
// resulting daily-budget issue, if any threshold was crossed.
func (t *BudgetTracker) Record(ctx context.Context, tokens int64) (*Issue, error) {
	t.rotateIfNeeded(ctx)

	var daily int64
	var err error
	if t.usingFallback || t.client == nil {
		t.fallbackDaily += tokens
		t.fallbackHourly += tokens
		daily = t.fallbackDaily
	} else {
		daily, err = t.client.IncrBy(ctx, dailyCounterKey, tokens).Result()
		if err != nil {
			logging.Get(logging.CategoryGuardian).Warn("BudgetTracker: redis IncrBy failed, falling back: %v", err)
			t.usingFallback = true
			t.fallbackDaily += tokens
			daily = t.fallbackDaily
		} else if _, err := t.client.IncrBy(ctx, hourlyCounterKey, tokens).Result(); err != nil {
			logging.Get(logging.CategoryGuardian).Warn("BudgetTracker: redis hourly IncrBy failed: %v", err)
		}
	}

	if t.dailyBudget <= 0 {
		return nil, nil
	}
	pct := float64(daily) / float64(t.dailyBudget) * 100

	switch {
	case pct >= blockThresholdPct:
		return &Issue{Severity: SeverityCritical, Category: "cost_budget", Description: fmt.Sprintf("daily token budget exceeded (%.0f%%)", pct)}, nil
	case pct >= alertThresholdPct:
		return &Issue{Severity: SeverityHigh, Category: "cost_budget", Description: fmt.Sprintf("daily token budget at %.0f%%", pct)}, nil
	case pct >= warnThresholdPct:
		return &Issue{Severity: SeverityMedium, Category: "cost_budget", Description: fmt.Sprintf("daily token budget at %.0f%%", pct)}, nil
	default:
		return nil, nil
	}
}

// rotateIfNeeded zeroes the daily counter (plus reset-date stamp) on a day
// rollover. Record calls it before every write; the hourly counter is
// zeroed separately by RotateHourly, which Loop C calls.
func (t *BudgetTracker) rotateIfNeeded(ctx context.Context) {
	today := time.Now().UTC().Format("2006-01-02")

	if t.usingFallback || t.client == nil {
		if t.fallbackDate != today {
			t.fallbackDate = today
			t.fallbackDaily = 0
		}
		return
	}

	lastDate, err := t.client.Get(ctx, resetDateKey).Result()
	if err != nil && err != redis.Nil {
		logging.Get(logging.CategoryGuardian).Warn("BudgetTracker: reading reset date failed: %v", err)
		return
	}
	if lastDate != today {
		if err := t.client.Set(ctx, resetDateKey, today, 0).Err(); err != nil {
			logging.Get(logging.CategoryGuardian).Warn("BudgetTracker: stamping reset date failed: %v", err)
		}
		t.client.Set(ctx, dailyCounterKey, 0, 0)
		logging.Guardian("BudgetTracker: daily counter rotated for %s", today)
	}
}

// RotateHourly zeroes the hourly counter. Called by Loop C on the hour
// rollover.
func (t *BudgetTracker) RotateHourly(ctx context.Context) {
	if t.usingFallback || t.client == nil {
		t.fallbackHourly = 0
		return
	}
	t.client.Set(ctx, hourlyCounterKey, 0, 0)
}
