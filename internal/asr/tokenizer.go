package asr

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// sentencePieceSpace is SentencePiece's word-boundary marker: a token
// starting with it begins a new word when detokenized.
const sentencePieceSpace = "▁" // U+2581 LOWER ONE EIGHTH BLOCK, "▁"

// LoadVocabulary reads a tokens.txt file (one token per line, optionally
// "token id" pairs separated by whitespace) into an id-indexed slice.
func LoadVocabulary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary %s: %w", path, err)
	}
	defer f.Close()

	vocab := make([]string, VocabSize)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			line++
			continue
		}
		token := fields[0]
		id := line
		if len(fields) >= 2 {
			if parsed, ok := parseTokenID(fields[1]); ok {
				id = parsed
			}
		}
		if id >= 0 && id < len(vocab) {
			vocab[id] = token
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

func parseTokenID(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Detokenize joins emitted token ids into a transcription string,
// replacing SentencePiece's word-boundary marker with a space.
func Detokenize(ids []int32, vocab []string) string {
	var b strings.Builder
	for _, id := range ids {
		if int(id) < 0 || int(id) >= len(vocab) {
			continue
		}
		tok := vocab[id]
		if strings.HasPrefix(tok, sentencePieceSpace) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			tok = strings.TrimPrefix(tok, sentencePieceSpace)
		}
		b.WriteString(tok)
	}
	return b.String()
}
