package web

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
)

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	phone := normalizePhone(r.URL.Query().Get("phone"))
	if phone == "" {
		if id, ok := identityOf(r); ok {
			phone = id.Phone
		}
	}
	s.renderDashboard(w, r, http.StatusOK, phone, "")
}

func (s *Server) awardPoints(w http.ResponseWriter, r *http.Request) {
	form := parseAward(r)
	if err := s.validate.Struct(form); err != nil {
		s.requestLogger(r).Warn("invalid award", zap.Any("fields", fieldErrors(err)))
		s.renderDashboard(w, r, http.StatusUnprocessableEntity, form.Phone, msgUpdateFailed)
		return
	}
	grant, _ := awardFor(form.Award)

	_, err := s.accessor(r).AwardPoints(r.Context(), form.Phone, grant.Points, grant.Reason)
	if err != nil {
		s.requestLogger(r).Error("award points",
			zap.String("phone", form.Phone), zap.Int("points", grant.Points), zap.Error(err))
		msg := msgUpdateFailed
		if errors.Is(err, rewards.ErrNotFound) {
			msg = ""
		}
		s.renderDashboard(w, r, statusFor(err), form.Phone, msg)
		return
	}
	http.Redirect(w, r, dashboardURL(form.Phone), http.StatusSeeOther)
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	form := parseRedeem(r)
	if err := s.validate.Struct(form); err != nil {
		s.requestLogger(r).Warn("invalid redemption", zap.Any("fields", fieldErrors(err)))
		s.renderDashboard(w, r, http.StatusUnprocessableEntity, form.Phone, msgUpdateFailed)
		return
	}

	acc := s.accessor(r)
	reward, err := acc.Reward(r.Context(), form.RewardID)
	if err == nil {
		_, err = acc.RedeemReward(r.Context(), form.Phone, *reward)
	}
	if err != nil {
		msg := msgUpdateFailed
		switch {
		case errors.Is(err, rewards.ErrInsufficientPoints):
			msg = msgInsufficientPoints
		case errors.Is(err, rewards.ErrNotFound) && reward != nil:
			msg = ""
		}
		s.requestLogger(r).Warn("redeem reward",
			zap.String("phone", form.Phone), zap.Int64("reward_id", form.RewardID), zap.Error(err))
		s.renderDashboard(w, r, statusFor(err), form.Phone, msg)
		return
	}
	http.Redirect(w, r, dashboardURL(form.Phone), http.StatusSeeOther)
}

// renderDashboard loads the customer, catalog and activity for phone. A missing customer is
// shown as the empty-state card rather than an error.
func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, phone, errMsg string) {
	ctx := r.Context()
	acc := s.accessor(r)
	log := s.requestLogger(r)

	view := dashboardView{page: s.basePage(r, "Dashboard"), Empty: msgNoRewardsInfo, Awards: awards}
	view.Error = errMsg

	if phone != "" {
		rec, err := acc.Lookup(ctx, phone)
		switch {
		case err == nil:
			view.Customer = rec
		case !errors.Is(err, rewards.ErrNotFound):
			log.Error("load customer", zap.String("phone", phone), zap.Error(err))
		}
	}

	catalog, err := acc.AvailableRewards(ctx)
	if err != nil {
		log.Error("load reward catalog", zap.Error(err))
	}
	for _, reward := range catalog {
		view.Rewards = append(view.Rewards, rewardOption{
			AvailableReward: reward,
			Affordable:      view.Customer != nil && view.Customer.TotalPoints >= reward.PointCost,
		})
	}

	if view.Customer != nil {
		view.Activity = s.recentActivity(ctx, acc, log, view.Customer.Phone)
	}
	s.render(w, r, status, pageDashboard, view)
}

func (s *Server) recentActivity(ctx context.Context, acc *rewards.Accessor, log *zap.Logger, phone string) []rewards.ActivityRecord {
	activity, err := acc.RecentActivity(ctx, phone, rewards.DefaultActivityLimit)
	if err != nil {
		log.Error("load recent activity", zap.String("phone", phone), zap.Error(err))
		return nil
	}
	return activity
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rewards.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rewards.ErrInsufficientPoints),
		errors.Is(err, rewards.ErrConcurrentUpdate),
		errors.Is(err, backend.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, rewards.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrNotAuthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
