package entity

// ScannerJob is a scanning job with the set of users subscribed to it.
// Membership is idempotent in both directions: subscribing twice is one
// subscription, unsubscribing a non-member is a successful no-op.
type ScannerJob struct {
	// ScannerID identifies the scanning job, stored uppercase.
	ScannerID string
	// UserIDs is the set of subscribed users.
	UserIDs []int64
}

// Issuance is the ephemeral result of one OTP issuance. Only the issuance
// timestamp and the code survive in the user record; the rest is for the
// caller and for audit logging.
type Issuance struct {
	// Code is the derived passcode.
	Code string
	// Plan is the user's subscription tier at issuance time.
	Plan SubscriptionPlan
	// Source is the tier that served the request.
	Source Tier
	// User is the record the code was derived from.
	User *User
}

// Tier identifies which credential backend served a request.
type Tier string

const (
	// TierRemote is the networked database of record.
	TierRemote Tier = "remote"
	// TierLocal is the on-disk cache.
	TierLocal Tier = "local"
	// TierEmergency is the out-of-band recovery channel.
	TierEmergency Tier = "emergency"
)
