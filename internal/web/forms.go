package web

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	tenDigits = regexp.MustCompile(`^\d{10}$`)
	nonDigits = regexp.MustCompile(`\D`)
)

// PhoneValidator accepts exactly ten digits.
var PhoneValidator = func(fl validator.FieldLevel) bool {
	return tenDigits.MatchString(fl.Field().String())
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	if err := v.RegisterValidation("phone", PhoneValidator); err != nil {
		return nil, err
	}
	return v, nil
}

// normalizePhone drops formatting such as "(555) 123-4567".
func normalizePhone(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type registerForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
}

type lookupForm struct {
	Phone string `form:"phone" validate:"required,phone"`
}

type customerForm struct {
	FirstName   string `form:"first_name" validate:"required"`
	LastName    string `form:"last_name" validate:"required"`
	Phone       string `form:"phone" validate:"required,phone"`
	TotalPoints int    `form:"total_points" validate:"gte=0"`
}

type awardForm struct {
	Phone string `form:"phone" validate:"required,phone"`
	Award string `form:"award" validate:"required,oneof=google_review social_sharing"`
}

type redeemForm struct {
	Phone    string `form:"phone" validate:"required,phone"`
	RewardID int64  `form:"reward_id" validate:"gt=0"`
}

var fieldMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"phone":    "must be a 10-digit phone number",
	"min":      "is too short",
	"gte":      "must be zero or more",
	"gt":       "is required",
	"oneof":    "is not a known option",
}

// fieldErrors maps validator failures to per-field messages keyed by form name.
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, e := range verrs {
		msg, ok := fieldMessages[e.Tag()]
		if !ok {
			msg = "is invalid"
		}
		out[e.Field()] = msg
	}
	return out
}

func parseLogin(r *http.Request) loginForm {
	return loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
}

func parseRegister(r *http.Request) registerForm {
	return registerForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
}

func parseLookup(r *http.Request) lookupForm {
	return lookupForm{Phone: normalizePhone(r.PostFormValue("phone"))}
}

// parseCustomer reports a malformed point total alongside the form.
func parseCustomer(r *http.Request) (customerForm, map[string]string) {
	form := customerForm{
		FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:  strings.TrimSpace(r.PostFormValue("last_name")),
		Phone:     normalizePhone(r.PostFormValue("phone")),
	}
	raw := strings.TrimSpace(r.PostFormValue("total_points"))
	if raw == "" {
		return form, map[string]string{"total_points": "is required"}
	}
	points, err := strconv.Atoi(raw)
	if err != nil {
		return form, map[string]string{"total_points": "must be a whole number"}
	}
	form.TotalPoints = points
	return form, nil
}

func parseAward(r *http.Request) awardForm {
	return awardForm{
		Phone: normalizePhone(r.PostFormValue("phone")),
		Award: r.PostFormValue("award"),
	}
}

func parseRedeem(r *http.Request) redeemForm {
	id, _ := strconv.ParseInt(r.PostFormValue("reward_id"), 10, 64)
	return redeemForm{
		Phone:    normalizePhone(r.PostFormValue("phone")),
		RewardID: id,
	}
}
