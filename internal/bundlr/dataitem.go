package bundlr

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dshills/nftdrop/internal/solana"
)

// SignatureTypeEd25519 is the ANS-104 signature type used by Solana keys.
const SignatureTypeEd25519 uint16 = 2

const (
	ed25519SignatureLength = 64
	ed25519OwnerLength     = 32
	optionalFieldLength    = 32
)

var (
	ErrUnsigned           = errors.New("data item is not signed")
	ErrInvalidDataItem    = errors.New("invalid data item")
	ErrBadSignature       = errors.New("data item signature does not verify")
	ErrUnsupportedSigType = errors.New("unsupported signature type")
)

// DataItem is an ANS-104 bundled transaction.
type DataItem struct {
	SignatureType uint16
	Signature     []byte
	Owner         []byte
	Target        []byte
	Anchor        []byte
	Tags          []Tag
	Data          []byte
}

// NewDataItem builds an unsigned item owned by signer.
func NewDataItem(signer *solana.Keypair, data []byte, tags []Tag) (*DataItem, error) {
	if err := validateTags(tags); err != nil {
		return nil, err
	}
	owner := signer.PublicKey()
	return &DataItem{
		SignatureType: SignatureTypeEd25519,
		Owner:         owner.Bytes(),
		Tags:          tags,
		Data:          data,
	}, nil
}

// CreateSigned builds and signs an item in one step.
func CreateSigned(signer *solana.Keypair, data []byte, tags []Tag) (*DataItem, error) {
	item, err := NewDataItem(signer, data, tags)
	if err != nil {
		return nil, err
	}
	if err := item.Sign(signer); err != nil {
		return nil, err
	}
	return item, nil
}

func (d *DataItem) signatureMessage() ([]byte, error) {
	h, err := deepHash([]any{
		"dataitem",
		"1",
		strconv.Itoa(int(d.SignatureType)),
		d.Owner,
		nonNil(d.Target),
		nonNil(d.Anchor),
		nonNil(encodeTags(d.Tags)),
		nonNil(d.Data),
	})
	if err != nil {
		return nil, err
	}
	return h[:], nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Sign signs the item. Its ID is fixed from this point on.
func (d *DataItem) Sign(signer *solana.Keypair) error {
	owner := signer.PublicKey()
	if !bytes.Equal(owner.Bytes(), d.Owner) {
		return fmt.Errorf("%w: signer is not the item owner", ErrInvalidDataItem)
	}
	msg, err := d.signatureMessage()
	if err != nil {
		return err
	}
	sig := signer.Sign(msg)
	d.Signature = sig[:]
	return nil
}

// Verify checks the item's signature against its owner.
func (d *DataItem) Verify() error {
	if d.SignatureType != SignatureTypeEd25519 {
		return fmt.Errorf("%w: %d", ErrUnsupportedSigType, d.SignatureType)
	}
	if len(d.Signature) != ed25519SignatureLength {
		return ErrUnsigned
	}
	msg, err := d.signatureMessage()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(d.Owner), msg, d.Signature) {
		return ErrBadSignature
	}
	return nil
}

// ID returns the base64url content identifier derived from the signature.
func (d *DataItem) ID() (string, error) {
	if len(d.Signature) == 0 {
		return "", ErrUnsigned
	}
	sum := sha256.Sum256(d.Signature)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Bytes serializes a signed item in its binary wire format.
func (d *DataItem) Bytes() ([]byte, error) {
	if len(d.Signature) != ed25519SignatureLength {
		return nil, ErrUnsigned
	}
	if len(d.Owner) != ed25519OwnerLength {
		return nil, fmt.Errorf("%w: owner is %d bytes", ErrInvalidDataItem, len(d.Owner))
	}
	for _, f := range [][]byte{d.Target, d.Anchor} {
		if len(f) != 0 && len(f) != optionalFieldLength {
			return nil, fmt.Errorf("%w: target and anchor must be %d bytes", ErrInvalidDataItem, optionalFieldLength)
		}
	}
	tags := encodeTags(d.Tags)

	var buf bytes.Buffer
	buf.Grow(d.Size())
	_ = binary.Write(&buf, binary.LittleEndian, d.SignatureType)
	buf.Write(d.Signature)
	buf.Write(d.Owner)
	writeOptional(&buf, d.Target)
	writeOptional(&buf, d.Anchor)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(d.Tags)))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(tags)))
	buf.Write(tags)
	buf.Write(d.Data)
	return buf.Bytes(), nil
}

// Size returns the serialized length of the item.
func (d *DataItem) Size() int {
	n := 2 + ed25519SignatureLength + ed25519OwnerLength + 1 + 1 + 16
	n += len(d.Target) + len(d.Anchor)
	n += len(encodeTags(d.Tags))
	return n + len(d.Data)
}

func writeOptional(buf *bytes.Buffer, b []byte) {
	if len(b) == 0 {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(b)
}

// ParseDataItem decodes a binary data item.
func ParseDataItem(raw []byte) (*DataItem, error) {
	r := bytes.NewReader(raw)
	d := &DataItem{}
	if err := binary.Read(r, binary.LittleEndian, &d.SignatureType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataItem, err)
	}
	if d.SignatureType != SignatureTypeEd25519 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSigType, d.SignatureType)
	}
	var err error
	if d.Signature, err = readN(r, ed25519SignatureLength); err != nil {
		return nil, err
	}
	if d.Owner, err = readN(r, ed25519OwnerLength); err != nil {
		return nil, err
	}
	if d.Target, err = readOptional(r); err != nil {
		return nil, err
	}
	if d.Anchor, err = readOptional(r); err != nil {
		return nil, err
	}
	var numTags, tagBytes uint64
	if err := binary.Read(r, binary.LittleEndian, &numTags); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataItem, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &tagBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataItem, err)
	}
	if tagBytes > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: tag bytes exceed item", ErrInvalidDataItem)
	}
	rawTags, err := readN(r, int(tagBytes))
	if err != nil {
		return nil, err
	}
	if d.Tags, err = decodeTags(rawTags); err != nil {
		return nil, err
	}
	if uint64(len(d.Tags)) != numTags {
		return nil, fmt.Errorf("%w: header says %d tags, found %d", ErrInvalidDataItem, numTags, len(d.Tags))
	}
	d.Data, err = readN(r, r.Len())
	if err != nil {
		return nil, err
	}
	return d, nil
}

func readN(r *bytes.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidDataItem)
	}
	return b, nil
}

func readOptional(r *bytes.Reader) ([]byte, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidDataItem)
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		return readN(r, optionalFieldLength)
	default:
		return nil, fmt.Errorf("%w: bad presence byte %d", ErrInvalidDataItem, flag)
	}
}
