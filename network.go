package soletic

import (
	"fmt"
	"strings"
)

// Network names a Solana cluster served by Helius.
type Network string

const (
	Mainnet Network = "mainnet"
	Devnet  Network = "devnet"
)

const heliusEndpointTemplate = "https://%s.helius-rpc.com/"

// ParseNetwork accepts "mainnet" or "devnet" in any case.
func ParseNetwork(value string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(value))) {
	case Mainnet:
		return Mainnet, nil
	case Devnet:
		return Devnet, nil
	default:
		return "", fmt.Errorf("unsupported network %q: expected %q or %q", value, Mainnet, Devnet)
	}
}

// Endpoint returns the Helius RPC URL for the network.
func (n Network) Endpoint() string {
	return fmt.Sprintf(heliusEndpointTemplate, n)
}

func (n Network) String() string {
	return string(n)
}
