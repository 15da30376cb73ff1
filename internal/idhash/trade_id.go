// Package idhash derives deterministic record ids.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID is the hex SHA-256 of account_id|offer_id|effect_id. The
// same Horizon trade effect always maps to the same journal key, so a
// replayed stream cannot notify twice.
func ComputeTradeID(
	accountID string,
	offerID string,
	effectID string,
) string {
	data := fmt.Sprintf("%s|%s|%s",
		accountID,
		offerID,
		effectID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
