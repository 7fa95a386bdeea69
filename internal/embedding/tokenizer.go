package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer is a minimal BERT wordpiece tokenizer backed by a vocab.txt file.
type Tokenizer struct {
	vocab map[string]int64
	unk   int64
	cls   int64
	sep   int64
}

// LoadTokenizer reads a one-token-per-line vocabulary file.
func LoadTokenizer(vocabPath string) (*Tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab file: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		vocab[scanner.Text()] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab file: %w", err)
	}

	t := &Tokenizer{vocab: vocab}
	var ok bool
	if t.unk, ok = vocab["[UNK]"]; !ok {
		return nil, fmt.Errorf("vocab missing [UNK] token")
	}
	if t.cls, ok = vocab["[CLS]"]; !ok {
		return nil, fmt.Errorf("vocab missing [CLS] token")
	}
	if t.sep, ok = vocab["[SEP]"]; !ok {
		return nil, fmt.Errorf("vocab missing [SEP] token")
	}
	return t, nil
}

// Encode tokenizes text into vocab IDs including [CLS] and [SEP], truncated to
// maxTokens.
func (t *Tokenizer) Encode(text string, maxTokens int) []int64 {
	ids := []int64{t.cls}
	for _, word := range splitWords(strings.ToLower(text)) {
		ids = append(ids, t.wordpiece(word)...)
		if len(ids) >= maxTokens-1 {
			ids = ids[:maxTokens-1]
			break
		}
	}
	return append(ids, t.sep)
}

// wordpiece greedily matches the longest vocab prefix, using the ## form for
// continuations.
func (t *Tokenizer) wordpiece(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	var ids []int64
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		var match int64 = -1
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				match = id
				break
			}
			end--
		}
		if match < 0 {
			return []int64{t.unk}
		}
		ids = append(ids, match)
		start = end
	}
	return ids
}

// splitWords separates on whitespace and splits punctuation into its own
// tokens, matching BERT basic tokenization.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
