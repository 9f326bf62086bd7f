package solana

const (
	tokenInitializeMint  uint8 = 0
	tokenCloseAccount    uint8 = 9
	tokenTransferChecked uint8 = 12
	tokenMintToChecked   uint8 = 14
)

type initializeMintData struct {
	Instruction     uint8
	Decimals        uint8
	MintAuthority   PublicKey
	FreezeAuthority *PublicKey
}

type checkedAmountData struct {
	Instruction uint8
	Amount      uint64
	Decimals    uint8
}

// InitializeMint initializes mint with the given authorities. A nil
// freezeAuthority leaves the mint unfreezable.
func InitializeMint(mint PublicKey, decimals uint8, mintAuthority PublicKey, freezeAuthority *PublicKey) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Writable(mint),
			ReadOnly(SysvarRentID),
		},
		Data: mustEncode(initializeMintData{
			Instruction:     tokenInitializeMint,
			Decimals:        decimals,
			MintAuthority:   mintAuthority,
			FreezeAuthority: freezeAuthority,
		}),
	}
}

// MintToChecked mints amount tokens into destination.
func MintToChecked(mint, destination, authority PublicKey, amount uint64, decimals uint8) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Writable(mint),
			Writable(destination),
			ReadOnlySigner(authority),
		},
		Data: mustEncode(checkedAmountData{Instruction: tokenMintToChecked, Amount: amount, Decimals: decimals}),
	}
}

// TransferChecked moves amount tokens from source to destination.
func TransferChecked(source, mint, destination, owner PublicKey, amount uint64, decimals uint8) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Writable(source),
			ReadOnly(mint),
			Writable(destination),
			ReadOnlySigner(owner),
		},
		Data: mustEncode(checkedAmountData{Instruction: tokenTransferChecked, Amount: amount, Decimals: decimals}),
	}
}

// CloseAccount closes an empty token account and returns its rent to
// destination.
func CloseAccount(account, destination, owner PublicKey) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Writable(account),
			Writable(destination),
			ReadOnlySigner(owner),
		},
		Data: []byte{tokenCloseAccount},
	}
}

// CreateAssociatedTokenAccount creates wallet's token account for mint,
// paid for by payer. It returns the instruction and the derived address.
func CreateAssociatedTokenAccount(payer, wallet, mint PublicKey) (Instruction, PublicKey, error) {
	ata, err := FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return Instruction{}, PublicKey{}, err
	}
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			WritableSigner(payer),
			Writable(ata),
			ReadOnly(wallet),
			ReadOnly(mint),
			ReadOnly(SystemProgramID),
			ReadOnly(TokenProgramID),
		},
	}, ata, nil
}
