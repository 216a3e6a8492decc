package soletic

import (
	"github.com/gagliardetto/solana-go"
)

// LoaderKind tells which account holds a program's deployment history.
type LoaderKind int

const (
	LoaderLegacyBPF LoaderKind = iota + 1
	LoaderUpgradeableProgram
	LoaderUpgradeableProgramData
	LoaderUpgradeableBufferOrUninitialized
)

func (k LoaderKind) String() string {
	switch k {
	case LoaderLegacyBPF:
		return "LegacyBpfLoader"
	case LoaderUpgradeableProgram:
		return "UpgradeableLoaderProgramAccount"
	case LoaderUpgradeableProgramData:
		return "UpgradeableLoaderProgramDataAccount"
	case LoaderUpgradeableBufferOrUninitialized:
		return "UpgradeableLoaderBufferOrUninitialized"
	default:
		return "Unknown"
	}
}

// Upgradeable loader account layout (UpgradeableLoaderState, bincode). The
// enum discriminant is a little-endian u32, so the program-data address of a
// Program account starts right after it. Revalidate if the loader layout changes.
const (
	upgradeableStateProgram     = 2
	upgradeableStateProgramData = 3
	programDataAddressOffset    = 4
	programDataAddressLength    = solana.PublicKeyLength
)

var (
	// BPFLoaderUpgradeableID owns programs deployed with the upgradeable loader.
	BPFLoaderUpgradeableID = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

	legacyBPFLoaderIDs = map[solana.PublicKey]struct{}{
		solana.MustPublicKeyFromBase58("BPFLoader1111111111111111111111111111111111"): {},
		solana.MustPublicKeyFromBase58("BPFLoader2111111111111111111111111111111111"): {},
	}
)

// LoaderClassification is the outcome of ClassifyLoader.
type LoaderClassification struct {
	Kind LoaderKind
	// ProgramData is set for LoaderUpgradeableProgram.
	ProgramData solana.PublicKey
	// KnownLegacyLoader is false when a non-upgradeable owner is not one of the
	// BPF loaders; such programs still follow the legacy path.
	KnownLegacyLoader bool
}

// ClassifyLoader inspects the owner and the state tag of an executable account.
func ClassifyLoader(account *AccountInfo) (LoaderClassification, error) {
	if !account.Owner.Equals(BPFLoaderUpgradeableID) {
		_, known := legacyBPFLoaderIDs[account.Owner]
		return LoaderClassification{Kind: LoaderLegacyBPF, KnownLegacyLoader: known}, nil
	}

	if len(account.Data) == 0 {
		return LoaderClassification{Kind: LoaderUpgradeableBufferOrUninitialized}, unsupportedStatef("Buffer and Uninitialized program states are not supported by this API")
	}

	switch account.Data[0] {
	case upgradeableStateProgram:
		end := programDataAddressOffset + programDataAddressLength
		if len(account.Data) < end {
			return LoaderClassification{Kind: LoaderUpgradeableBufferOrUninitialized}, unsupportedStatef("Program account data is %d bytes, expected at least %d", len(account.Data), end)
		}
		return LoaderClassification{
			Kind:        LoaderUpgradeableProgram,
			ProgramData: solana.PublicKeyFromBytes(account.Data[programDataAddressOffset:end]),
		}, nil
	case upgradeableStateProgramData:
		return LoaderClassification{Kind: LoaderUpgradeableProgramData}, nil
	default:
		return LoaderClassification{Kind: LoaderUpgradeableBufferOrUninitialized}, unsupportedStatef("Buffer and Uninitialized program states are not supported by this API")
	}
}
