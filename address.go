package soletic

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ParseProgramAddress decodes a base58 program address into a 32 byte public
// key. No network call is made.
func ParseProgramAddress(address string) (solana.PublicKey, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, invalidSyntaxf("Program address: %s, is invalid because: %v.", address, err)
	}
	if pubkey.String() != address {
		return solana.PublicKey{}, invalidSyntaxf("Program address: %s, is invalid because: non-canonical base58 encoding.", address)
	}
	return pubkey, nil
}

// FetchProgramAccount loads the account behind pubkey and checks that it is
// an executable program.
func FetchProgramAccount(ctx context.Context, client RPCClient, pubkey solana.PublicKey) (*AccountInfo, error) {
	account, err := client.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return nil, fmt.Errorf("account info %s: %w", pubkey, err)
	}
	if account == nil {
		return nil, invalidAddressf("'%s' does not exist. Please provide a valid program address.", pubkey)
	}
	if !account.Executable {
		return nil, invalidAddressf("'%s' is not a program account. Please provide a valid program address.", pubkey)
	}
	return account, nil
}
