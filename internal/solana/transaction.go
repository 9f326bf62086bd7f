package solana

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

// MaxTransactionSize is the largest serialized transaction a validator
// accepts.
const MaxTransactionSize = 1232

var (
	ErrNoInstructions      = errors.New("transaction has no instructions")
	ErrMissingSigner       = errors.New("missing signer")
	ErrTransactionTooLarge = errors.New("transaction too large")
	ErrTooManyAccounts     = errors.New("transaction references more than 256 accounts")
)

// Hash is a recent blockhash.
type Hash [32]byte

func (h Hash) String() string { return base58.Encode(h[:]) }

func (h *Hash) UnmarshalText(text []byte) error {
	b, err := base58.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid blockhash %q: %w", text, err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("invalid blockhash %q: %d bytes", text, len(b))
	}
	copy(h[:], b)
	return nil
}

// MessageHeader counts signer and read-only accounts in AccountKeys.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// Transaction is a signed or unsigned legacy transaction.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

type accountEntry struct {
	key      PublicKey
	signer   bool
	writable bool
	payer    bool
	order    int
}

func (a accountEntry) group() int {
	switch {
	case a.payer:
		return -1
	case a.signer && a.writable:
		return 0
	case a.signer:
		return 1
	case a.writable:
		return 2
	default:
		return 3
	}
}

// NewTransaction compiles instructions into an unsigned transaction paid for
// by payer.
func NewTransaction(payer PublicKey, blockhash Hash, instructions ...Instruction) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	index := map[PublicKey]*accountEntry{}
	var entries []*accountEntry
	add := func(meta AccountMeta, isPayer bool) {
		if e, ok := index[meta.PublicKey]; ok {
			e.signer = e.signer || meta.IsSigner
			e.writable = e.writable || meta.IsWritable
			e.payer = e.payer || isPayer
			return
		}
		e := &accountEntry{
			key:      meta.PublicKey,
			signer:   meta.IsSigner,
			writable: meta.IsWritable,
			payer:    isPayer,
			order:    len(entries),
		}
		index[meta.PublicKey] = e
		entries = append(entries, e)
	}

	add(WritableSigner(payer), true)
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc, false)
		}
		add(ReadOnly(ix.ProgramID), false)
	}
	if len(entries) > 256 {
		return nil, ErrTooManyAccounts
	}

	sort.SliceStable(entries, func(i, j int) bool {
		gi, gj := entries[i].group(), entries[j].group()
		if gi != gj {
			return gi < gj
		}
		return entries[i].order < entries[j].order
	})

	msg := Message{RecentBlockhash: blockhash}
	positions := make(map[PublicKey]uint8, len(entries))
	for i, e := range entries {
		positions[e.key] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, e.key)
		switch {
		case e.signer && !e.writable:
			msg.Header.NumRequiredSignatures++
			msg.Header.NumReadonlySignedAccounts++
		case e.signer:
			msg.Header.NumRequiredSignatures++
		case !e.writable:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: positions[ix.ProgramID],
			Data:           ix.Data,
		}
		for _, acc := range ix.Accounts {
			ci.Accounts = append(ci.Accounts, positions[acc.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, ci)
	}

	return &Transaction{
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

// Signers returns the keys whose signatures the message requires, in order.
func (m Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// Serialize encodes the message in the wire format that gets signed.
func (m Message) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Header.NumRequiredSignatures)
	buf.WriteByte(m.Header.NumReadonlySignedAccounts)
	buf.WriteByte(m.Header.NumReadonlyUnsignedAccounts)

	writeCompactU16(&buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf.Write(k[:])
	}
	buf.Write(m.RecentBlockhash[:])

	writeCompactU16(&buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf.WriteByte(ix.ProgramIDIndex)
		writeCompactU16(&buf, len(ix.Accounts))
		buf.Write(ix.Accounts)
		writeCompactU16(&buf, len(ix.Data))
		buf.Write(ix.Data)
	}
	return buf.Bytes()
}

// Sign signs the message with every required signer. Keypairs the message
// does not reference are ignored.
func (t *Transaction) Sign(signers ...*Keypair) error {
	byKey := make(map[PublicKey]*Keypair, len(signers))
	for _, s := range signers {
		if s != nil {
			byKey[s.PublicKey()] = s
		}
	}
	msg := t.Message.Serialize()
	for i, key := range t.Message.Signers() {
		kp, ok := byKey[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		t.Signatures[i] = kp.Sign(msg)
	}
	return nil
}

// Signature returns the transaction id, the fee payer's signature.
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

// Serialize encodes the signed transaction.
func (t *Transaction) Serialize() ([]byte, error) {
	for i, sig := range t.Signatures {
		if sig.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, t.Message.AccountKeys[i])
		}
	}
	var buf bytes.Buffer
	writeCompactU16(&buf, len(t.Signatures))
	for _, sig := range t.Signatures {
		buf.Write(sig[:])
	}
	buf.Write(t.Message.Serialize())
	if buf.Len() > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTransactionTooLarge, buf.Len(), MaxTransactionSize)
	}
	return buf.Bytes(), nil
}

func writeCompactU16(buf *bytes.Buffer, n int) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
