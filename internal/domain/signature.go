package domain

import "time"

// Signer is one co-signer of a multi-signature request.
type Signer struct {
	AccountID string `json:"account_id"`
	HasSigned bool   `json:"has_signed"`
	Weight    int    `json:"weight,omitempty"`
}

// SignatureRequest is a pending transaction awaiting co-signatures.
type SignatureRequest struct {
	Hash      string    `json:"hash"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Embedded  struct {
		Signers []Signer `json:"signers"`
	} `json:"_embedded"`
}

// SignedBy returns the account ids that already signed, in signer order.
func (r SignatureRequest) SignedBy() []string {
	var ids []string
	for _, s := range r.Embedded.Signers {
		if s.HasSigned {
			ids = append(ids, s.AccountID)
		}
	}
	return ids
}
