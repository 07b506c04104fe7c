package encoder

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxSeqLen caps a single sequence at [CLS] + 126 subwords + [SEP].
const maxSeqLen = 128

// Tokenizer performs BERT-style WordPiece tokenization and packs batches into
// rectangular token-id and attention-mask grids.
type Tokenizer struct {
	vocab *vocab
}

// NewTokenizer creates a Tokenizer from a vocab.txt file.
func NewTokenizer(vocabPath string) (*Tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{vocab: v}, nil
}

// VocabSize returns the vocabulary size.
func (t *Tokenizer) VocabSize() int { return t.vocab.size() }

// PadID returns the padding token ID.
func (t *Tokenizer) PadID() int64 { return t.vocab.padID }

// encode converts a single text into its token IDs with [CLS] and [SEP],
// truncated to maxSeqLen. No padding is applied here; EncodeBatch pads to the
// batch-local maximum.
func (t *Tokenizer) encode(text string) []int64 {
	tokens := t.wordpiece(t.basicTokenize(text))

	// Truncate to fit [CLS] + tokens + [SEP] within maxSeqLen.
	maxTokens := maxSeqLen - 2
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	ids := make([]int64, 0, len(tokens)+2)
	ids = append(ids, t.vocab.clsID)
	for _, tok := range tokens {
		ids = append(ids, t.vocab.lookup(tok))
	}
	ids = append(ids, t.vocab.sepID)
	return ids
}

// EncodeBatch tokenizes all texts jointly and right-pads every row to the
// longest sequence in the batch. The mask marks real tokens 1 and padding 0.
// The padded width is a property of this batch, never a global constant.
func (t *Tokenizer) EncodeBatch(texts []string) (ids, mask [][]int64) {
	n := len(texts)
	if n == 0 {
		return nil, nil
	}

	seqs := make([][]int64, n)
	maxLen := 0
	for i, text := range texts {
		seqs[i] = t.encode(text)
		if len(seqs[i]) > maxLen {
			maxLen = len(seqs[i])
		}
	}

	ids = make([][]int64, n)
	mask = make([][]int64, n)
	for i, s := range seqs {
		row := make([]int64, maxLen)
		m := make([]int64, maxLen)
		copy(row, s)
		for j := range s {
			m[j] = 1
		}
		for j := len(s); j < maxLen; j++ {
			row[j] = t.vocab.padID
		}
		ids[i] = row
		mask[i] = m
	}
	return ids, mask
}

// basicTokenize applies BERT's BasicTokenizer: clean, lowercase, strip
// accents, split on whitespace and punctuation, handle CJK characters.
func (t *Tokenizer) basicTokenize(text string) []string {
	text = cleanText(text)
	text = tokenizeChineseChars(text)
	text = strings.ToLower(text)
	text = stripAccents(text)

	// Split on whitespace, then split each token on punctuation.
	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}
	return tokens
}

// wordpiece applies the WordPiece algorithm to a list of basic tokens.
func (t *Tokenizer) wordpiece(tokens []string) []string {
	var result []string
	for _, token := range tokens {
		if len(token) == 0 {
			continue
		}
		result = append(result, t.wordpieceToken(token)...)
	}
	return result
}

// wordpieceToken decomposes a single basic token into WordPiece subwords.
func (t *Tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > 200 {
		return []string{"[UNK]"}
	}

	var subTokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.contains(sub) {
				subTokens = append(subTokens, sub)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return subTokens
}

// cleanText removes control characters and replaces whitespace with spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining diacritical marks after NFD normalization.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenizeChineseChars adds spaces around CJK Unified Ideographs so they
// become individual tokens.
func tokenizeChineseChars(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if isChineseChar(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitOnPunctuation splits a word at each punctuation character, keeping
// the punctuation as separate tokens.
func splitOnPunctuation(word string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range word {
		if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// Character classification helpers — these match BERT's reference tokenizer.

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// BERT treats anything in ASCII range 33-47, 58-64, 91-96, 123-126 as
	// punctuation, plus Unicode punctuation categories.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	// CJK Unified Ideographs and extension ranges.
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
