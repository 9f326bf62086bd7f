package bundlr

import (
	"crypto/sha512"
	"fmt"
	"strconv"
)

// deepHash computes the Arweave deep hash of a chunk. A chunk is either a
// []byte blob or a []any list of chunks.
func deepHash(chunk any) ([48]byte, error) {
	switch v := chunk.(type) {
	case []byte:
		tag := sha512.Sum384([]byte("blob" + strconv.Itoa(len(v))))
		data := sha512.Sum384(v)
		return sha512.Sum384(append(tag[:], data[:]...)), nil
	case string:
		return deepHash([]byte(v))
	case []any:
		acc := sha512.Sum384([]byte("list" + strconv.Itoa(len(v))))
		for _, item := range v {
			h, err := deepHash(item)
			if err != nil {
				return [48]byte{}, err
			}
			acc = sha512.Sum384(append(acc[:], h[:]...))
		}
		return acc, nil
	default:
		return [48]byte{}, fmt.Errorf("deep hash: unsupported chunk type %T", chunk)
	}
}
