// Package otp derives and validates time-based one-time passcodes.
//
// Unlike authenticator-app TOTP where the period is a fixed 30 seconds, the
// validity interval here is chosen per request (a paid user may get a
// day-long code, a trial user a minute-long one), so every operation takes
// the period explicitly. Two codes derived within the same period for the
// same secret are identical, which makes issuance retry-safe.
package otp
