// Package entity holds the credential domain model shared by the tiers.
package entity

import "time"

// User is the credential record kept identically in the remote tier and the
// local cache tier.
type User struct {
	// ID is the stable external identifier and primary key in both tiers.
	ID int64
	// UserName is a mutable, non-unique display handle.
	UserName string
	// FullName is a mutable display name.
	FullName string
	// Email is optional contact info.
	Email string
	// Mobile is optional contact info.
	Mobile string
	// TOTPSecret is the sealed per-user secret OTPs derive from. Generated
	// once at registration, rotated only on explicit reset. Never empty once
	// the user has been issued at least one OTP.
	TOTPSecret []byte
	// Plan is the user's subscription tier.
	Plan SubscriptionPlan
	// Balance is the account balance, adjusted by the billing collaborator.
	Balance float64
	// LastOTP is the exact code recorded at the most recent issuance, kept
	// so a delivery retry inside the validity window matches.
	LastOTP string
	// LastOTPIssuedAt is when the most recent OTP was issued.
	LastOTPIssuedAt time.Time
	// OTPValiditySeconds is the validity window length for this user's codes.
	OTPValiditySeconds uint
}

// HasSecret reports whether the user already owns a TOTP secret.
func (u *User) HasSecret() bool {
	return u != nil && len(u.TOTPSecret) > 0
}

// LastOTPValidAt reports whether the recorded last-issued code is still
// inside its validity window at the given time.
func (u *User) LastOTPValidAt(at time.Time) bool {
	if u == nil || u.LastOTP == "" || u.LastOTPIssuedAt.IsZero() || u.OTPValiditySeconds == 0 {
		return false
	}
	return at.Before(u.LastOTPIssuedAt.Add(time.Duration(u.OTPValiditySeconds) * time.Second))
}
