package model

import "time"

// User represents a user document in MongoDB. Profile fields (first name,
// last name, avatar) are mutable by the owning user only; everything else
// belongs to the auth service.
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Email        string     `json:"email" bson:"email"`
	FirstName    string     `json:"firstName" bson:"first_name"`
	LastName     string     `json:"lastName" bson:"last_name"`
	AvatarURL    string     `json:"avatarUrl" bson:"avatar_url"`
	PasswordHash string     `json:"-" bson:"password_hash"`
	OtpSecret    string     `json:"-" bson:"otp_secret"`
	OtpEnabled   bool       `json:"otpEnabled" bson:"otp_enabled"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    *time.Time `json:"updatedAt" bson:"updated_at"`
}

// FullName returns the display name used across conversation titles and
// call prompts.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}
