// Package account defines the account forms sent to the hub API.
package account

// Registration is the sign-up form.
type Registration struct {
	Username     string `json:"username" validate:"notblank" label:"Username"`
	Password     string `json:"password" validate:"notblank,min=8" label:"Password"`
	Email        string `json:"email" validate:"notblank,contains=@" label:"Email"`
	Neighborhood string `json:"neighborhood,omitempty" label:"Neighborhood"`
	City         string `json:"city,omitempty" label:"City"`
	State        string `json:"state,omitempty" label:"State"`
	Country      string `json:"country,omitempty" label:"Country"`
}

// Credentials is the login form.
type Credentials struct {
	Username string `json:"username" validate:"notblank" label:"Username"`
	Password string `json:"password" validate:"notblank" label:"Password"`
}

// Address is the user's location, used to match nearby listings.
type Address struct {
	Neighborhood string `json:"neighborhood" validate:"notblank" label:"Neighborhood"`
	City         string `json:"city" validate:"notblank" label:"City"`
	State        string `json:"state" validate:"notblank" label:"State"`
	Country      string `json:"country" validate:"notblank" label:"Country"`
}

// PasswordChange is the change-password form.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"notblank" label:"Current password"`
	NewPassword     string `json:"newPassword" validate:"notblank,min=8" label:"New password"`
	ConfirmPassword string `json:"confirmPassword" validate:"notblank,eqfield=NewPassword" label:"Confirm password"`
}

// LogoutAllDevices is the body of the logout-all-devices call.
type LogoutAllDevices struct {
	Password string `json:"password" validate:"notblank" label:"Password"`
}
