package kiro

import (
	"encoding/json"
	"time"
)

// Account is a kiro.dev account profile.
type Account struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	SubscriptionType string `json:"subscriptionType"`
	FolderID         string `json:"folderId"`
}

// BalanceResponse is the raw API response from the balance endpoint.
// Balance and quota arrive as int, float, or string depending on the
// plan, so both are kept as raw JSON until parseCredits normalizes them.
type BalanceResponse struct {
	Balance   json.RawMessage `json:"balance"`
	Quota     json.RawMessage `json:"quota"`
	ExpiresAt *string         `json:"expiresAt"`
}

// Balance holds normalized credit figures for one account.
type Balance struct {
	Credits   float64
	Quota     float64
	HasQuota  bool
	ExpiresAt time.Time
}

// AccountData is the parsed aggregate for one credential.
// Partial data is populated even when some requests fail.
type AccountData struct {
	Account   Account
	Balance   *Balance
	FetchedAt time.Time
	Error     error
}
