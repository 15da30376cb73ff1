package domain

// Offer is a resting order of an account, as listed by Horizon.
type Offer struct {
	ID                 OfferID `json:"id"`
	PagingToken        string  `json:"paging_token"`
	Seller             string  `json:"seller"`
	Selling            Asset   `json:"selling_asset"`
	Buying             Asset   `json:"buying_asset"`
	Amount             string  `json:"amount"`
	Price              string  `json:"price"`
	LastModifiedLedger int64   `json:"last_modified_ledger"`
}

// ContainsOffer reports whether an offer with id is present in offers.
func ContainsOffer(offers []Offer, id OfferID) bool {
	for _, o := range offers {
		if o.ID == id {
			return true
		}
	}
	return false
}
