package metaplex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/nftdrop/internal/solana"
	"github.com/near/borsh-go"
)

// ProgramID is the token-metadata program.
var ProgramID = solana.MustPublicKey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

const (
	keyMetadataV1       uint8 = 4
	collectionDetailsV1 uint8 = 0

	ixUpdateMetadataAccountV2         uint8 = 15
	ixCreateMasterEditionV3           uint8 = 17
	ixVerifySizedCollectionItem       uint8 = 30
	ixSetAndVerifySizedCollectionItem uint8 = 32
	ixCreateMetadataAccountV3         uint8 = 33
)

// Program limits on metadata fields.
const (
	MaxNameLength           = 32
	MaxSymbolLength         = 10
	MaxURILength            = 200
	MaxCreators             = 5
	MaxSellerFeeBasisPoints = 10000
)

var (
	ErrNotMetadata = errors.New("account is not a metadata account")
	ErrInvalidData = errors.New("invalid metadata")
)

// MetadataAddress derives the metadata account of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"), ProgramID[:], mint[:],
	}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("deriving metadata address: %w", err)
	}
	return addr, nil
}

// MasterEditionAddress derives the master edition account of mint.
func MasterEditionAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"), ProgramID[:], mint[:], []byte("edition"),
	}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("deriving master edition address: %w", err)
	}
	return addr, nil
}

// Creator is a royalty recipient.
type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// Collection links an item to its collection mint.
type Collection struct {
	Verified bool
	Key      solana.PublicKey
}

// Uses limits how many times a token may be used.
type Uses struct {
	UseMethod uint8
	Remaining uint64
	Total     uint64
}

// DataV2 is the mutable metadata written by create and update instructions.
type DataV2 struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             *[]Creator
	Collection           *Collection
	Uses                 *Uses
}

// Validate checks the limits the program enforces so a bad document fails
// before a transaction is sent.
func (d DataV2) Validate() error {
	if len(d.Name) > MaxNameLength {
		return fmt.Errorf("%w: name %q longer than %d bytes", ErrInvalidData, d.Name, MaxNameLength)
	}
	if len(d.Symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: symbol %q longer than %d bytes", ErrInvalidData, d.Symbol, MaxSymbolLength)
	}
	if len(d.URI) > MaxURILength {
		return fmt.Errorf("%w: uri longer than %d bytes", ErrInvalidData, MaxURILength)
	}
	if d.SellerFeeBasisPoints > MaxSellerFeeBasisPoints {
		return fmt.Errorf("%w: seller fee %d basis points", ErrInvalidData, d.SellerFeeBasisPoints)
	}
	if d.Creators != nil {
		creators := *d.Creators
		if len(creators) > MaxCreators {
			return fmt.Errorf("%w: %d creators (max %d)", ErrInvalidData, len(creators), MaxCreators)
		}
		total := 0
		for _, c := range creators {
			total += int(c.Share)
		}
		if len(creators) > 0 && total != 100 {
			return fmt.Errorf("%w: creator shares sum to %d", ErrInvalidData, total)
		}
	}
	return nil
}

type collectionDetails struct {
	Kind uint8
	Size uint64
}

type createMetadataArgs struct {
	Instruction       uint8
	Data              DataV2
	IsMutable         bool
	CollectionDetails *collectionDetails
}

type createMasterEditionArgs struct {
	Instruction uint8
	MaxSupply   *uint64
}

type updateMetadataArgs struct {
	Instruction         uint8
	Data                *DataV2
	UpdateAuthority     *solana.PublicKey
	PrimarySaleHappened *bool
	IsMutable           *bool
}

func encode(v any) ([]byte, error) {
	b, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("encoding token-metadata instruction: %w", err)
	}
	return b, nil
}

// CreateMetadataAccountV3Accounts names the accounts of a create metadata
// instruction.
type CreateMetadataAccountV3Accounts struct {
	Metadata        solana.PublicKey
	Mint            solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	UpdateAuthority solana.PublicKey
}

// CreateMetadataAccountV3 creates the metadata account for a mint. A sized
// collection parent is created with isCollection set.
func CreateMetadataAccountV3(accts CreateMetadataAccountV3Accounts, data DataV2, isMutable, isCollection bool) (solana.Instruction, error) {
	args := createMetadataArgs{
		Instruction: ixCreateMetadataAccountV3,
		Data:        data,
		IsMutable:   isMutable,
	}
	if isCollection {
		args.CollectionDetails = &collectionDetails{Kind: collectionDetailsV1, Size: 0}
	}
	b, err := encode(args)
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			solana.Writable(accts.Metadata),
			solana.ReadOnly(accts.Mint),
			solana.ReadOnlySigner(accts.MintAuthority),
			solana.WritableSigner(accts.Payer),
			solana.ReadOnly(accts.UpdateAuthority),
			solana.ReadOnly(solana.SystemProgramID),
			solana.ReadOnly(solana.SysvarRentID),
		},
		Data: b,
	}, nil
}

// CreateMasterEditionV3Accounts names the accounts of a create master
// edition instruction.
type CreateMasterEditionV3Accounts struct {
	Edition         solana.PublicKey
	Mint            solana.PublicKey
	UpdateAuthority solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	Metadata        solana.PublicKey
}

// CreateMasterEditionV3 creates the master edition of a mint. A nil
// maxSupply allows unlimited prints.
func CreateMasterEditionV3(accts CreateMasterEditionV3Accounts, maxSupply *uint64) (solana.Instruction, error) {
	b, err := encode(createMasterEditionArgs{Instruction: ixCreateMasterEditionV3, MaxSupply: maxSupply})
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			solana.Writable(accts.Edition),
			solana.Writable(accts.Mint),
			solana.ReadOnlySigner(accts.UpdateAuthority),
			solana.ReadOnlySigner(accts.MintAuthority),
			solana.WritableSigner(accts.Payer),
			solana.Writable(accts.Metadata),
			solana.ReadOnly(solana.TokenProgramID),
			solana.ReadOnly(solana.SystemProgramID),
			solana.ReadOnly(solana.SysvarRentID),
		},
		Data: b,
	}, nil
}

// UpdateMetadataAccountV2Args holds the optional fields of an update. Nil
// fields are left unchanged.
type UpdateMetadataAccountV2Args struct {
	Data                *DataV2
	NewUpdateAuthority  *solana.PublicKey
	PrimarySaleHappened *bool
	IsMutable           *bool
}

// UpdateMetadataAccountV2 updates a metadata account signed by its update
// authority.
func UpdateMetadataAccountV2(metadata, updateAuthority solana.PublicKey, args UpdateMetadataAccountV2Args) (solana.Instruction, error) {
	b, err := encode(updateMetadataArgs{
		Instruction:         ixUpdateMetadataAccountV2,
		Data:                args.Data,
		UpdateAuthority:     args.NewUpdateAuthority,
		PrimarySaleHappened: args.PrimarySaleHappened,
		IsMutable:           args.IsMutable,
	})
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			solana.Writable(metadata),
			solana.ReadOnlySigner(updateAuthority),
		},
		Data: b,
	}, nil
}

// VerifyCollectionAccounts names the accounts of the sized collection
// verification instructions.
type VerifyCollectionAccounts struct {
	Metadata                solana.PublicKey
	CollectionAuthority     solana.PublicKey
	Payer                   solana.PublicKey
	CollectionMint          solana.PublicKey
	Collection              solana.PublicKey
	CollectionMasterEdition solana.PublicKey
}

// VerifySizedCollectionItem verifies an item that already references the
// collection.
func VerifySizedCollectionItem(accts VerifyCollectionAccounts) solana.Instruction {
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			solana.Writable(accts.Metadata),
			solana.ReadOnlySigner(accts.CollectionAuthority),
			solana.WritableSigner(accts.Payer),
			solana.ReadOnly(accts.CollectionMint),
			solana.Writable(accts.Collection),
			solana.ReadOnly(accts.CollectionMasterEdition),
		},
		Data: []byte{ixVerifySizedCollectionItem},
	}
}

// SetAndVerifySizedCollectionItem sets the collection of an item and
// verifies it in one step. updateAuthority is the item's update authority.
func SetAndVerifySizedCollectionItem(accts VerifyCollectionAccounts, updateAuthority solana.PublicKey) solana.Instruction {
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			solana.Writable(accts.Metadata),
			solana.ReadOnlySigner(accts.CollectionAuthority),
			solana.WritableSigner(accts.Payer),
			solana.ReadOnly(updateAuthority),
			solana.ReadOnly(accts.CollectionMint),
			solana.Writable(accts.Collection),
			solana.ReadOnly(accts.CollectionMasterEdition),
		},
		Data: []byte{ixSetAndVerifySizedCollectionItem},
	}
}

// Data is the descriptive part of an on-chain metadata account.
type Data struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             *[]Creator
}

// Metadata is the leading portion of a metadata account. Fields after the
// collection reference are not decoded.
type Metadata struct {
	Key                 uint8
	UpdateAuthority     solana.PublicKey
	Mint                solana.PublicKey
	Data                Data
	PrimarySaleHappened bool
	IsMutable           bool
	EditionNonce        *uint8
	TokenStandard       *uint8
	Collection          *Collection
}

// DecodeMetadata parses raw metadata account data.
func DecodeMetadata(raw []byte) (*Metadata, error) {
	if len(raw) == 0 || raw[0] != keyMetadataV1 {
		return nil, ErrNotMetadata
	}
	var md Metadata
	if err := borsh.Deserialize(&md, raw); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	md.Data.Name = trimPadding(md.Data.Name)
	md.Data.Symbol = trimPadding(md.Data.Symbol)
	md.Data.URI = trimPadding(md.Data.URI)
	return &md, nil
}

// CollectionRef returns the item's collection reference, if it has one.
func (m *Metadata) CollectionRef() (Collection, bool) {
	if m.Collection == nil || m.Collection.Key.IsZero() {
		return Collection{}, false
	}
	return *m.Collection, true
}

func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}
