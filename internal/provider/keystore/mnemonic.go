package keystore

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"

	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// maxTypoDistance bounds word suggestions for mistyped mnemonic words.
const maxTypoDistance = 2

var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
)

// GenerateMnemonic creates a new BIP39 mnemonic of 12 or 24 words.
func GenerateMnemonic(wordCount int) (string, error) {
	var bitSize int
	switch wordCount {
	case 12:
		bitSize = 128
	case 24:
		bitSize = 256
	default:
		return "", linkerr.WithDetails(linkerr.ErrInvalidInput, map[string]string{
			"words": strconv.Itoa(wordCount),
			"valid": "12, 24",
		})
	}

	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// NormalizeMnemonic lowercases input, strips list numbering and commas, and
// collapses whitespace so pasted phrases validate.
func NormalizeMnemonic(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// ValidateMnemonic checks word count, word list membership and checksum.
// Unknown words carry a "did you mean" suggestion.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := strings.Fields(normalized)
	if len(words) != 12 && len(words) != 24 {
		return linkerr.WithDetails(linkerr.ErrInvalidMnemonic, map[string]string{
			"words": strconv.Itoa(len(words)),
		})
	}

	if hint := typoHint(words); hint != "" {
		return linkerr.WithSuggestion(linkerr.ErrInvalidMnemonic, hint)
	}

	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return linkerr.WithSuggestion(linkerr.ErrInvalidMnemonic, "checksum does not match; check the word order")
	}
	return nil
}

func typoHint(words []string) string {
	var hints []string
	for i, w := range words {
		if _, ok := bip39.GetWordIndex(w); ok {
			continue
		}
		hint := "word " + strconv.Itoa(i+1) + " '" + w + "'"
		if s := suggestWord(w); s != "" {
			hint += ": did you mean '" + s + "'?"
		} else {
			hint += " is not a BIP39 word"
		}
		hints = append(hints, hint)
	}
	return strings.Join(hints, "; ")
}

func suggestWord(input string) string {
	best, bestDist := "", math.MaxInt
	for _, w := range bip39.GetWordList() {
		if d := levenshtein.ComputeDistance(input, w); d < bestDist {
			best, bestDist = w, d
		}
	}
	if bestDist <= maxTypoDistance {
		return best
	}
	return ""
}
