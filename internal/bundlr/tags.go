package bundlr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	maxTags           = 128
	maxTagNameBytes   = 1024
	maxTagValueBytes  = 3072
	headerContentType = "Content-Type"
	headerAppName     = "App-Name"
)

var ErrInvalidTags = errors.New("invalid data item tags")

// Tag is a name/value pair attached to a data item.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ContentTags returns the tags attached to every upload.
func ContentTags(appName, contentType string) []Tag {
	tags := make([]Tag, 0, 2)
	if appName != "" {
		tags = append(tags, Tag{Name: headerAppName, Value: appName})
	}
	return append(tags, Tag{Name: headerContentType, Value: contentType})
}

func validateTags(tags []Tag) error {
	if len(tags) > maxTags {
		return fmt.Errorf("%w: %d tags (max %d)", ErrInvalidTags, len(tags), maxTags)
	}
	for _, t := range tags {
		if t.Name == "" || t.Value == "" {
			return fmt.Errorf("%w: empty name or value", ErrInvalidTags)
		}
		if len(t.Name) > maxTagNameBytes || len(t.Value) > maxTagValueBytes {
			return fmt.Errorf("%w: tag %q too long", ErrInvalidTags, t.Name)
		}
	}
	return nil
}

// encodeTags serializes tags as an Avro array of {name: bytes, value: bytes}
// records. No tags encode to zero bytes.
func encodeTags(tags []Tag) []byte {
	if len(tags) == 0 {
		return nil
	}
	var buf bytes.Buffer
	writeLong(&buf, int64(len(tags)))
	for _, t := range tags {
		writeLong(&buf, int64(len(t.Name)))
		buf.WriteString(t.Name)
		writeLong(&buf, int64(len(t.Value)))
		buf.WriteString(t.Value)
	}
	writeLong(&buf, 0)
	return buf.Bytes()
}

func decodeTags(raw []byte) ([]Tag, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	var tags []Tag
	for {
		n, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTags, err)
		}
		if n == 0 {
			break
		}
		if n < 0 {
			// negative block counts are followed by the block size in bytes
			n = -n
			if _, err := binary.ReadVarint(r); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidTags, err)
			}
		}
		for i := int64(0); i < n; i++ {
			name, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			value, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			tags = append(tags, Tag{Name: string(name), Value: string(value)})
		}
	}
	return tags, nil
}

func writeLong(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadVarint(r)
	if err != nil || n < 0 || n > int64(r.Len()) {
		return nil, fmt.Errorf("%w: bad length", ErrInvalidTags)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTags, err)
	}
	return b, nil
}
