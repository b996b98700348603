package web

// Messages shown to the operator. Each failure site has one fixed text.
const (
	msgLoginFailed        = "Login failed. Please try again."
	msgLoginError         = "An error occurred during login. Please try again."
	msgRegisterFailed     = "Registration failed. Please try again."
	msgRegistered         = "Account created. Confirm your email address, then sign in."
	msgLookupNotFound     = "No rewards found for this phone number."
	msgAddCustomerFailed  = "Failed to add customer."
	msgNotAuthenticated   = "User not authenticated"
	msgNoRewardsInfo      = "No rewards information found. Please add a user first."
	msgInsufficientPoints = "Not enough points to redeem this reward."
	msgUpdateFailed       = "Failed to update points. Please try again."
)

// award is a fixed points grant offered on the dashboard.
type award struct {
	Key    string
	Points int
	Reason string
	Label  string
}

var awards = []award{
	{Key: "google_review", Points: 1000, Reason: "Google review", Label: "Add 1000 Points for Google Review"},
	{Key: "social_sharing", Points: 500, Reason: "social sharing", Label: "Add 500 Points for Social Sharing"},
}

func awardFor(key string) (award, bool) {
	for _, a := range awards {
		if a.Key == key {
			return a, true
		}
	}
	return award{}, false
}
