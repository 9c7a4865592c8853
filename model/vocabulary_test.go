package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabularyEncode(t *testing.T) {
	v := &Vocabulary{Values: []string{"a", "bc", "</s>"}, EOS: []int32{2}}

	assert.Equal(t, int32(0), v.Encode("a"))
	assert.Equal(t, int32(1), v.Encode("bc"))
	assert.Equal(t, int32(-1), v.Encode("zz"))
	assert.Equal(t, "bc", v.Decode(1))
	assert.Equal(t, 3, v.Size())
}

func TestVocabularySpecials(t *testing.T) {
	v := &Vocabulary{Values: []string{"<s>", "a", "</s>"}, BOS: []int32{0}, EOS: []int32{2}}

	assert.True(t, v.Is(0, SpecialBOS))
	assert.True(t, v.Is(2, SpecialEOS))
	assert.False(t, v.Is(1, SpecialBOS))
	assert.False(t, v.Is(1, SpecialEOS))
	assert.False(t, v.Is(2, SpecialBOS))
}

func TestVocabularySignature(t *testing.T) {
	a := &Vocabulary{Values: []string{"a", "b"}, EOS: []int32{1}}
	b := &Vocabulary{Values: []string{"a", "b"}, EOS: []int32{1}}
	assert.Equal(t, a.Signature(), b.Signature())

	// token boundaries matter: ["ab"] and ["a","b"] must not collide
	c := &Vocabulary{Values: []string{"ab"}, EOS: []int32{0}}
	d := &Vocabulary{Values: []string{"a", "b"}, EOS: []int32{0}}
	assert.NotEqual(t, c.Signature(), d.Signature())

	// special ids are part of the identity
	e := &Vocabulary{Values: []string{"a", "b"}, EOS: []int32{0}}
	assert.NotEqual(t, a.Signature(), e.Signature())
}
