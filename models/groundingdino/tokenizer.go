package groundingdino

import (
	"github.com/pkg/errors"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Encoding is a tokenized caption.
type Encoding struct {
	IDs           []int
	TypeIDs       []int
	Tokens        []string
	AttentionMask []int
}

// Tokenizer turns a caption into word pieces with special tokens added.
type Tokenizer interface {
	Encode(caption string) (*Encoding, error)
}

// HFTokenizer is a tokenizer loaded from a HuggingFace tokenizer.json
// (bert-base-uncased for every published GroundingDINO checkpoint).
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// LoadTokenizer loads the tokenizer.json at path.
func LoadTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading tokenizer %s", path)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Encode tokenizes caption.
func (t *HFTokenizer) Encode(caption string) (*Encoding, error) {
	en, err := t.tk.EncodeSingle(caption, true)
	if err != nil {
		return nil, errors.Wrapf(err, "tokenizing %q", caption)
	}
	return &Encoding{
		IDs:           en.Ids,
		TypeIDs:       en.TypeIds,
		Tokens:        en.Tokens,
		AttentionMask: en.AttentionMask,
	}, nil
}
