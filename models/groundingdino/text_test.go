package groundingdino

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoding(tokens ...string) *Encoding {
	ids := make([]int, len(tokens))
	for i := range ids {
		ids[i] = 100 + i
	}
	return &Encoding{IDs: ids, TypeIDs: make([]int, len(tokens)), Tokens: tokens}
}

func TestCaption(t *testing.T) {
	tests := map[string]string{
		"Black Jacket":  "black jacket.",
		"  shirt.  ":    "shirt.",
		"":              "",
		"   ":           "",
		"a dog. a cat?": "a dog. a cat?.",
	}
	for in, want := range tests {
		assert.Equal(t, want, Caption(in), in)
	}
}

func TestBuildTextInputsSinglePhrase(t *testing.T) {
	text := BuildTextInputs(encoding("[CLS]", "black", "jacket", ".", "[SEP]"), 256)
	n := text.Len()
	require.Equal(t, 5, n)

	assert.Equal(t, []int64{0, 0, 1, 2, 0}, text.PositionIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, text.AttentionMask)
	assert.Equal(t, []bool{true, false, false, true, true}, text.Special)

	at := func(r, c int) bool { return text.SelfAttention[r*n+c] }
	for r := 1; r <= 3; r++ {
		for c := 1; c <= 3; c++ {
			assert.True(t, at(r, c), "phrase tokens %d,%d attend to each other", r, c)
		}
	}
	assert.True(t, at(0, 0))
	assert.True(t, at(4, 4))
	assert.False(t, at(0, 1))
	assert.False(t, at(1, 4))
}

func TestBuildTextInputsTwoPhrases(t *testing.T) {
	text := BuildTextInputs(encoding("[CLS]", "dog", ".", "cat", ".", "[SEP]"), 256)
	n := text.Len()

	assert.Equal(t, []int64{0, 0, 1, 0, 1, 0}, text.PositionIDs)
	assert.True(t, text.SelfAttention[3*n+4])
	assert.False(t, text.SelfAttention[1*n+3], "phrases are isolated")
}

func TestBuildTextInputsTruncates(t *testing.T) {
	text := BuildTextInputs(encoding("[CLS]", "a", "b", "c", "d", ".", "[SEP]"), 4)
	assert.Equal(t, 4, text.Len())
	assert.Len(t, text.Tokens, 4)
	assert.Len(t, text.SelfAttention, 16)
}

func TestPhraseMergesWordPieces(t *testing.T) {
	text := BuildTextInputs(encoding("[CLS]", "black", "jack", "##et", ".", "[SEP]"), 256)

	assert.Equal(t, "black jacket", text.Phrase([]bool{true, true, true, true, true, true}))
	assert.Equal(t, "jacket", text.Phrase([]bool{false, false, true, true, false, false}))
	assert.Equal(t, "", text.Phrase(nil))
}
