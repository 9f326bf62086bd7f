package solana

const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

type createAccountData struct {
	Instruction uint32
	Lamports    uint64
	Space       uint64
	Owner       PublicKey
}

type transferData struct {
	Instruction uint32
	Lamports    uint64
}

// CreateAccount allocates space for newAccount, funded by from and owned by
// owner.
func CreateAccount(from, newAccount PublicKey, lamports, space uint64, owner PublicKey) Instruction {
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			WritableSigner(from),
			WritableSigner(newAccount),
		},
		Data: mustEncode(createAccountData{
			Instruction: systemCreateAccount,
			Lamports:    lamports,
			Space:       space,
			Owner:       owner,
		}),
	}
}

// Transfer moves lamports between system accounts.
func Transfer(from, to PublicKey, lamports uint64) Instruction {
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			WritableSigner(from),
			Writable(to),
		},
		Data: mustEncode(transferData{Instruction: systemTransfer, Lamports: lamports}),
	}
}
