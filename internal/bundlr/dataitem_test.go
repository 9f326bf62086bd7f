package bundlr

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/dshills/nftdrop/internal/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepHash(t *testing.T) {
	tests := []struct {
		name  string
		chunk any
		want  string
	}{
		{"blob", []byte("hello"), "33ab2407a6c328c0bc1bbe5971f49af5c1908985f83c3d2bd89a9e221dd8b068dc61ce968ba3f9ab12d5361ba3944382"},
		{"list", []any{"a", "bc"}, "241cfbf0f5b9087758b8e21afe01732ae3800adb366e39ab643595887960a6bb064cdc1560e29ea64dd94d3ecee53da6"},
		{"empty list", []any{}, "a69e7d37fdc7f040a9ec16aae84de24fab4a653dac4de0bd247e36bab9fe45d9289c5a04a893c95285812f5cefc9707a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deepHash(tt.chunk)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(got[:]))
		})
	}

	_, err := deepHash(42)
	assert.Error(t, err)
}

func TestEncodeTags(t *testing.T) {
	tags := ContentTags("NB", "image/png")
	want := []byte{4, 16}
	want = append(want, "App-Name"...)
	want = append(want, 4)
	want = append(want, "NB"...)
	want = append(want, 24)
	want = append(want, "Content-Type"...)
	want = append(want, 18)
	want = append(want, "image/png"...)
	want = append(want, 0)
	assert.Equal(t, want, encodeTags(tags))
	assert.Empty(t, encodeTags(nil))

	decoded, err := decodeTags(want)
	require.NoError(t, err)
	assert.Equal(t, tags, decoded)
}

func TestValidateTags(t *testing.T) {
	assert.NoError(t, validateTags(ContentTags("", "image/png")))
	assert.ErrorIs(t, validateTags([]Tag{{Name: "x"}}), ErrInvalidTags)
}

func testSigner(t *testing.T) *solana.Keypair {
	t.Helper()
	kp, err := solana.KeypairFromSeed(make([]byte, 32))
	require.NoError(t, err)
	return kp
}

func TestDataItemSignAndSerialize(t *testing.T) {
	signer := testSigner(t)
	item, err := NewDataItem(signer, []byte(`{"name":"#1"}`), ContentTags("NB", "application/json"))
	require.NoError(t, err)

	_, err = item.ID()
	assert.ErrorIs(t, err, ErrUnsigned)
	_, err = item.Bytes()
	assert.ErrorIs(t, err, ErrUnsigned)

	require.NoError(t, item.Sign(signer))
	require.NoError(t, item.Verify())

	id, err := item.ID()
	require.NoError(t, err)
	sum := sha256.Sum256(item.Signature)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), id)
	assert.Len(t, id, 43)

	raw, err := item.Bytes()
	require.NoError(t, err)
	assert.Len(t, raw, item.Size())
	assert.Equal(t, SignatureTypeEd25519, binary.LittleEndian.Uint16(raw[0:2]))
	pub := signer.PublicKey()
	assert.Equal(t, pub.Bytes(), raw[66:98])
	assert.Equal(t, []byte{0, 0}, raw[98:100])
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(raw[100:108]))

	parsed, err := ParseDataItem(raw)
	require.NoError(t, err)
	assert.Equal(t, item.Tags, parsed.Tags)
	assert.Equal(t, item.Data, parsed.Data)
	require.NoError(t, parsed.Verify())
	parsedID, err := parsed.ID()
	require.NoError(t, err)
	assert.Equal(t, id, parsedID)
}

func TestDataItemDeterministicID(t *testing.T) {
	signer := testSigner(t)
	a, err := CreateSigned(signer, []byte("png bytes"), ContentTags("NB", "image/png"))
	require.NoError(t, err)
	b, err := CreateSigned(signer, []byte("png bytes"), ContentTags("NB", "image/png"))
	require.NoError(t, err)
	idA, _ := a.ID()
	idB, _ := b.ID()
	assert.Equal(t, idA, idB)
}

func TestDataItemVerifyDetectsTampering(t *testing.T) {
	signer := testSigner(t)
	item, err := CreateSigned(signer, []byte("data"), nil)
	require.NoError(t, err)
	item.Data = []byte("other")
	assert.ErrorIs(t, item.Verify(), ErrBadSignature)
}

func TestDataItemSignRejectsOtherKey(t *testing.T) {
	item, err := NewDataItem(testSigner(t), []byte("x"), nil)
	require.NoError(t, err)
	other, err := solana.NewKeypair()
	require.NoError(t, err)
	assert.ErrorIs(t, item.Sign(other), ErrInvalidDataItem)
}

func TestParseDataItemErrors(t *testing.T) {
	_, err := ParseDataItem([]byte{2})
	assert.ErrorIs(t, err, ErrInvalidDataItem)
	_, err = ParseDataItem([]byte{1, 0})
	assert.ErrorIs(t, err, ErrUnsupportedSigType)
	_, err = ParseDataItem(append([]byte{2, 0}, make([]byte, 40)...))
	assert.ErrorIs(t, err, ErrInvalidDataItem)
}

func TestAssetManifest(t *testing.T) {
	m := AssetManifest("IMG", "JSON")
	b, err := m.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"manifest":"arweave/paths","version":"0.1.0","paths":{"image.png":{"id":"IMG"},"metadata.json":{"id":"JSON"}},"index":{"path":"metadata.json"}}`,
		string(b))
	id, ok := m.Lookup("image.png")
	assert.True(t, ok)
	assert.Equal(t, "IMG", id)
}
