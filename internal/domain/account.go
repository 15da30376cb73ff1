package domain

// Network selects the Stellar network an account lives on.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// NetworkFor maps the testnet flag onto a Network.
func NetworkFor(testnet bool) Network {
	if testnet {
		return NetworkTestnet
	}
	return NetworkMainnet
}

// String returns the string representation of Network.
func (n Network) String() string {
	return string(n)
}

// IsValid checks if the network is a known value.
func (n Network) IsValid() bool {
	return n == NetworkMainnet || n == NetworkTestnet
}

// Account is a tracked wallet account.
// Corresponds to tracked_accounts table in PostgreSQL.
type Account struct {
	ID        string // "<network>:<public key>"
	Name      string // display name used in notification titles
	PublicKey string // G... StrKey
	Testnet   bool
	CreatedAt int64 // record creation timestamp (ms)
}

// AccountID builds the deterministic account id for a key on a network.
func AccountID(publicKey string, testnet bool) string {
	return NetworkFor(testnet).String() + ":" + publicKey
}

// Network returns the network the account lives on.
func (a Account) Network() Network {
	return NetworkFor(a.Testnet)
}
