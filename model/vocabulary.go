package model

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
)

type Special int32

const (
	SpecialBOS Special = iota
	SpecialEOS
)

// Vocabulary is the ordered token id -> decoded string mapping plus the
// special token ids. It is read-only once handed to the engine; derived
// maps are memoized on first use.
type Vocabulary struct {
	Values []string

	BOS, EOS []int32

	valuesOnce sync.Once
	values     map[string]int32

	signatureOnce sync.Once
	signature     string
}

func (v *Vocabulary) Size() int {
	return len(v.Values)
}

func (v *Vocabulary) Is(id int32, special Special) bool {
	switch special {
	case SpecialBOS:
		return slices.Contains(v.BOS, id)
	case SpecialEOS:
		return slices.Contains(v.EOS, id)
	default:
		return false
	}
}

func (v *Vocabulary) Encode(s string) int32 {
	v.valuesOnce.Do(func() {
		v.values = make(map[string]int32, len(v.Values))
		for i, value := range v.Values {
			v.values[value] = int32(i)
		}
	})

	if id, ok := v.values[s]; ok {
		return id
	}

	return -1
}

func (v *Vocabulary) Decode(id int32) string {
	return v.Values[id]
}

// Signature digests the token strings and special ids. Two tokenizers with
// the same signature index identically, so the signature keys cached
// transition indexes.
func (v *Vocabulary) Signature() string {
	v.signatureOnce.Do(func() {
		h := sha256.New()
		var n [4]byte
		for _, value := range v.Values {
			binary.LittleEndian.PutUint32(n[:], uint32(len(value)))
			h.Write(n[:])
			h.Write([]byte(value))
		}
		for _, id := range v.BOS {
			binary.LittleEndian.PutUint32(n[:], uint32(id))
			h.Write(n[:])
		}
		for _, id := range v.EOS {
			binary.LittleEndian.PutUint32(n[:], uint32(id))
			h.Write(n[:])
		}
		v.signature = fmt.Sprintf("%x", h.Sum(nil))
	})

	return v.signature
}
