package domain

import "time"

// AccountData is the subset of a Horizon account record the daemon uses.
type AccountData struct {
	ID            string    `json:"id"`
	Sequence      string    `json:"sequence"`
	SubentryCount int       `json:"subentry_count"`
	Balances      []Balance `json:"balances"`
	Signers       []Signer  `json:"signers"`
}

// Balance is one balance line of an account.
type Balance struct {
	Asset   Asset  `json:"asset"`
	Balance string `json:"balance"`
}

// LedgerInfo summarizes the latest ledger known to a Horizon node.
type LedgerInfo struct {
	Network           Network   `json:"network"`
	Sequence          int64     `json:"sequence"`
	CoreSequence      int64     `json:"core_sequence"`
	NetworkPassphrase string    `json:"network_passphrase"`
	ObservedAt        time.Time `json:"observed_at"`
}
