package groundingdino

import (
	"strings"

	"github.com/samber/lo"
)

// specialTokens delimit phrases inside a caption.
var specialTokens = map[string]struct{}{
	"[CLS]": {},
	"[SEP]": {},
	".":     {},
	"?":     {},
}

// Caption normalizes a prompt the way the detector was trained: lower case,
// trimmed, terminated with a period. An empty prompt stays empty.
func Caption(prompt string) string {
	caption := strings.ToLower(strings.TrimSpace(prompt))
	if caption == "" {
		return ""
	}
	if !strings.HasSuffix(caption, ".") {
		caption += "."
	}
	return caption
}

// TextInputs are the text-side tensors of one caption, all of length L (the
// self-attention mask is L x L, row major).
type TextInputs struct {
	Tokens        []string
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	PositionIDs   []int64
	SelfAttention []bool
	Special       []bool
}

// Len returns the number of tokens.
func (t *TextInputs) Len() int {
	return len(t.InputIDs)
}

// BuildTextInputs derives the detector text inputs from a tokenizer encoding.
//
// Tokens only attend to tokens of the same phrase, and position ids restart at
// every phrase. A phrase runs up to and including its closing delimiter; the
// leading [CLS] and trailing [SEP] only attend to themselves.
//
// Arguments:
//   - enc: The tokenized caption, special tokens included.
//   - maxTextLen: Encodings longer than this are truncated.
//
// Returns:
//   - *TextInputs: The text inputs.
func BuildTextInputs(enc *Encoding, maxTextLen int) *TextInputs {
	n := min(len(enc.IDs), maxTextLen)

	toInt64 := func(v []int) []int64 {
		out := make([]int64, n)
		for i := 0; i < n && i < len(v); i++ {
			out[i] = int64(v[i])
		}
		return out
	}

	t := &TextInputs{
		Tokens:        enc.Tokens[:min(n, len(enc.Tokens))],
		InputIDs:      toInt64(enc.IDs),
		TokenTypeIDs:  toInt64(enc.TypeIDs),
		PositionIDs:   make([]int64, n),
		SelfAttention: make([]bool, n*n),
	}
	if len(enc.AttentionMask) == 0 {
		t.AttentionMask = lo.Map(make([]int64, n), func(int64, int) int64 { return 1 })
	} else {
		t.AttentionMask = toInt64(enc.AttentionMask)
	}
	t.Special = lo.Map(t.Tokens, func(tok string, _ int) bool {
		_, ok := specialTokens[tok]
		return ok
	})

	for i := 0; i < n; i++ {
		t.SelfAttention[i*n+i] = true
	}

	previous := 0
	for col := 0; col < len(t.Special); col++ {
		if !t.Special[col] {
			continue
		}
		if col == 0 || col == n-1 {
			t.SelfAttention[col*n+col] = true
			t.PositionIDs[col] = 0
		} else {
			for r := previous + 1; r <= col; r++ {
				for c := previous + 1; c <= col; c++ {
					t.SelfAttention[r*n+c] = true
				}
				t.PositionIDs[r] = int64(r - previous - 1)
			}
		}
		previous = col
	}
	return t
}

// Phrase joins the selected non-special tokens back into text, merging
// wordpiece continuations ("##") into the preceding token.
func (t *TextInputs) Phrase(selected []bool) string {
	var b strings.Builder
	for i, tok := range t.Tokens {
		if i >= len(selected) || !selected[i] || t.Special[i] {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, "##"); ok && b.Len() > 0 {
			b.WriteString(rest)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}
