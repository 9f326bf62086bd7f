package solana

import (
	"fmt"

	"github.com/near/borsh-go"
)

// AccountMeta describes one account referenced by an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

func Writable(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsWritable: true} }
func ReadOnly(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk} }
func WritableSigner(pk PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: true, IsWritable: true}
}
func ReadOnlySigner(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsSigner: true} }

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// encodeData borsh-encodes instruction arguments. The system program uses
// bincode, which is byte-identical to borsh for fixed width integers and
// keys.
func encodeData(v any) ([]byte, error) {
	b, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("encoding instruction data: %w", err)
	}
	return b, nil
}

func mustEncode(v any) []byte {
	b, err := encodeData(v)
	if err != nil {
		panic(err)
	}
	return b
}
