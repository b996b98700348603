package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/observability"
)

// Option configures an Accessor.
type Option func(*Accessor)

// WithClock overrides the clock used to stamp activity entries.
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) {
		a.now = now
	}
}

// Accessor performs rewards operations with the permissions of the executor it wraps.
type Accessor struct {
	exec   backend.Executor
	logger *zap.Logger
	now    func() time.Time
}

// NewAccessor constructs an Accessor.
func NewAccessor(exec backend.Executor, logger *zap.Logger, opts ...Option) *Accessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Accessor{exec: exec, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Lookup returns the record for phone.
func (a *Accessor) Lookup(ctx context.Context, phone string) (*CustomerRewards, error) {
	row, err := backend.From(a.exec, TableCustomerRewards).Eq("phone", phone).Single(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNoRows) || errors.Is(err, backend.ErrMultipleRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup rewards: %w", err)
	}
	var rec CustomerRewards
	if err := backend.Decode(row, &rec); err != nil {
		return nil, fmt.Errorf("decode rewards: %w", err)
	}
	return &rec, nil
}

// AddCustomer creates a record. A phone that is already registered is rejected.
func (a *Accessor) AddCustomer(ctx context.Context, rec CustomerRewards) (*CustomerRewards, error) {
	if rec.TotalPoints < 0 {
		return nil, ErrInvalidAmount
	}
	row := backend.Row{
		"phone":        rec.Phone,
		"first_name":   rec.FirstName,
		"last_name":    rec.LastName,
		"total_points": rec.TotalPoints,
	}
	if rec.Email != "" {
		row["email"] = rec.Email
	}

	rows, err := backend.From(a.exec, TableCustomerRewards).Insert(ctx, row)
	if err != nil {
		observability.RecordMutationFailure("add_customer", causeOf(err))
		return nil, fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
	var stored CustomerRewards
	if err := backend.Decode(rows[0], &stored); err != nil {
		return nil, fmt.Errorf("decode rewards: %w", err)
	}
	return &stored, nil
}

// AwardPoints credits amount points to phone and logs the reason.
func (a *Accessor) AwardPoints(ctx context.Context, phone string, amount int, reason string) (*CustomerRewards, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	current, err := a.Lookup(ctx, phone)
	if err != nil {
		return nil, err
	}

	updated, err := a.setTotal(ctx, "award", current, current.TotalPoints+amount)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	observability.RecordPointsAwarded(amount, now)
	a.appendActivity(ctx, phone, AwardDescription(amount, reason), now)
	return updated, nil
}

// RedeemReward debits reward's cost from phone. The balance never goes negative.
func (a *Accessor) RedeemReward(ctx context.Context, phone string, reward AvailableReward) (*CustomerRewards, error) {
	if reward.PointCost <= 0 {
		return nil, ErrInvalidAmount
	}
	current, err := a.Lookup(ctx, phone)
	if err != nil {
		return nil, err
	}
	if current.TotalPoints < reward.PointCost {
		return nil, ErrInsufficientPoints
	}

	updated, err := a.setTotal(ctx, "redeem", current, current.TotalPoints-reward.PointCost)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	observability.RecordRedemption(reward.Description, now)
	a.appendActivity(ctx, phone, RedeemDescription(reward), now)
	return updated, nil
}

// RecentActivity lists the newest activity entries, scoped to phone when it is not empty.
func (a *Accessor) RecentActivity(ctx context.Context, phone string, limit int) ([]ActivityRecord, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	q := backend.From(a.exec, TableRecentActivities)
	if phone != "" {
		q = q.Eq("phone", phone)
	}
	rows, err := q.Order("date", false).Limit(limit).Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return backend.DecodeAll[ActivityRecord](rows)
}

// AvailableRewards lists the catalog, cheapest first.
func (a *Accessor) AvailableRewards(ctx context.Context) ([]AvailableReward, error) {
	rows, err := backend.From(a.exec, TableAvailableRewards).Order("point_cost", true).Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return backend.DecodeAll[AvailableReward](rows)
}

// Reward returns one catalog entry.
func (a *Accessor) Reward(ctx context.Context, id int64) (*AvailableReward, error) {
	row, err := backend.From(a.exec, TableAvailableRewards).Eq("id", id).Single(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNoRows) || errors.Is(err, backend.ErrMultipleRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}
	var reward AvailableReward
	if err := backend.Decode(row, &reward); err != nil {
		return nil, fmt.Errorf("decode reward: %w", err)
	}
	return &reward, nil
}

// AddReward adds a catalog entry.
func (a *Accessor) AddReward(ctx context.Context, reward AvailableReward) (*AvailableReward, error) {
	if reward.PointCost <= 0 {
		return nil, ErrInvalidAmount
	}
	rows, err := backend.From(a.exec, TableAvailableRewards).Insert(ctx, backend.Row{
		"description": reward.Description,
		"point_cost":  reward.PointCost,
	})
	if err != nil {
		observability.RecordMutationFailure("add_reward", causeOf(err))
		return nil, fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
	var stored AvailableReward
	if err := backend.Decode(rows[0], &stored); err != nil {
		return nil, fmt.Errorf("decode reward: %w", err)
	}
	return &stored, nil
}

// setTotal writes next only if the balance still equals what was read.
func (a *Accessor) setTotal(ctx context.Context, op string, current *CustomerRewards, next int) (*CustomerRewards, error) {
	rows, err := backend.From(a.exec, TableCustomerRewards).
		Eq("phone", current.Phone).
		Eq("total_points", current.TotalPoints).
		Update(ctx, backend.Row{"total_points": next})
	if err != nil {
		observability.RecordMutationFailure(op, causeOf(err))
		return nil, fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
	if len(rows) == 0 {
		observability.RecordMutationFailure(op, "conflict")
		a.logger.Warn("points changed between read and write",
			zap.String("operation", op),
			zap.String("phone", current.Phone),
			zap.Int("expected_points", current.TotalPoints))
		return nil, ErrConcurrentUpdate
	}

	var updated CustomerRewards
	if err := backend.Decode(rows[0], &updated); err != nil {
		return nil, fmt.Errorf("decode rewards: %w", err)
	}
	return &updated, nil
}

// appendActivity logs a failed insert instead of returning it; the points change stands.
func (a *Accessor) appendActivity(ctx context.Context, phone, description string, at time.Time) {
	_, err := backend.From(a.exec, TableRecentActivities).Insert(ctx, backend.Row{
		"description": description,
		"date":        at,
		"phone":       phone,
	})
	if err != nil {
		observability.RecordActivityAppendFailure()
		a.logger.Error("append activity failed",
			zap.String("phone", phone),
			zap.String("description", description),
			zap.Error(err))
	}
}

func causeOf(err error) string {
	switch {
	case errors.Is(err, backend.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, backend.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, backend.ErrInvalidQuery):
		return "invalid"
	default:
		return "backend"
	}
}
