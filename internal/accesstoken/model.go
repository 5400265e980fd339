package accesstoken

import "time"

// AccessToken is the server side record of an issued access token. ID is
// the token's jti claim.
type AccessToken struct {
	ID       string    `json:"id"`
	ClientID string    `json:"client_id"`
	Subject  string    `json:"subject"`
	Scopes   []string  `json:"scopes"`
	Expiry   time.Time `json:"expiry"`
	Revoked  bool      `json:"revoked"`
}

func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}
