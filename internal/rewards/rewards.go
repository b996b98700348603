// Package rewards reads and mutates customer point balances, the recent-activity log and the
// reward catalog through the backend row API.
package rewards

import (
	"errors"
	"fmt"
	"time"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
)

// Record sets owned by this package.
const (
	TableCustomerRewards  = "customer_rewards"
	TableRecentActivities = "recent_activities"
	TableAvailableRewards = "available_rewards"
)

// DefaultActivityLimit is the number of activity entries shown when no limit is given.
const DefaultActivityLimit = 5

var (
	// ErrNotFound is returned when a lookup matches no record, or more than one.
	ErrNotFound = errors.New("rewards record not found")
	// ErrMutationFailed wraps any rejected or failed write.
	ErrMutationFailed = errors.New("rewards mutation failed")
	// ErrInsufficientPoints is returned when a redemption costs more than the balance.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrConcurrentUpdate is returned when the balance changed between read and write.
	ErrConcurrentUpdate = fmt.Errorf("%w: balance changed concurrently", ErrMutationFailed)
	// ErrInvalidAmount is returned for negative awards and non-positive reward costs.
	ErrInvalidAmount = errors.New("invalid point amount")
)

// CustomerRewards is one customer's loyalty record, keyed by phone.
type CustomerRewards struct {
	ID          int64  `json:"id,omitempty"`
	Phone       string `json:"phone"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	TotalPoints int    `json:"total_points"`
	Email       string `json:"email,omitempty"`
}

// FullName joins first and last name.
func (c CustomerRewards) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// ActivityRecord is an append-only log entry describing a points change.
type ActivityRecord struct {
	ID          int64     `json:"id,omitempty"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Phone       string    `json:"phone,omitempty"`
}

// AvailableReward is a catalog entry a customer can redeem.
type AvailableReward struct {
	ID          int64  `json:"id,omitempty"`
	Description string `json:"description" yaml:"description"`
	PointCost   int    `json:"point_cost" yaml:"point_cost"`
}

// Schema lists the record sets the rewards accessor needs from a backend.
func Schema() []backend.TableSpec {
	return []backend.TableSpec{
		{Name: TableCustomerRewards, Unique: []string{"phone"}, Watch: true},
		{Name: TableRecentActivities, Watch: true},
		{Name: TableAvailableRewards, Unique: []string{"description"}},
	}
}

// AwardDescription is the activity text recorded for an award.
func AwardDescription(points int, reason string) string {
	return fmt.Sprintf("Received %d points for %s", points, reason)
}

// RedeemDescription is the activity text recorded for a redemption.
func RedeemDescription(reward AvailableReward) string {
	return fmt.Sprintf("Redeemed %s for %d points", reward.Description, reward.PointCost)
}
