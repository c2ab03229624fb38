package metadata

import "strings"

// MaxFieldLength is the longest name or symbol accepted from any source.
const MaxFieldLength = 32

// UnverifiedName replaces names that cannot be trusted.
const UnverifiedName = "Unverified"

// IsPrintableASCII reports whether every byte of s is in 0x20..0x7E.
// The empty string is trivially printable.
func IsPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// IsGibberish reports whether a candidate name or symbol must be rejected:
// empty, longer than MaxFieldLength, or containing non-printable bytes.
func IsGibberish(s string) bool {
	return s == "" || len(s) > MaxFieldLength || !IsPrintableASCII(s)
}

// LooksLikeAddress reports whether s has the shape of a base58 account
// address: 32 to 44 characters from 1-9, A-H, J-N, P-Z, a-k, m-z. The
// ambiguous 0, O, I and l never appear in base58.
func LooksLikeAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isBase58Char(s[i]) {
			return false
		}
	}
	return true
}

func isBase58Char(c byte) bool {
	switch {
	case c >= '1' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return c != 'I' && c != 'O'
	case c >= 'a' && c <= 'z':
		return c != 'l'
	default:
		return false
	}
}

// ShortSymbol is the first four characters of mint, upper-cased. Shorter
// input is used whole; empty input yields "????".
func ShortSymbol(mint string) string {
	if mint == "" {
		return "????"
	}
	if len(mint) > 4 {
		mint = mint[:4]
	}
	return strings.ToUpper(mint)
}

// Fallback is the identity used when no source produced anything usable.
func Fallback(mint string) Identity {
	return Identity{Name: UnverifiedName, Symbol: ShortSymbol(mint), Source: "fallback"}
}

// sanitize rejects gibberish first, then replaces address look-alikes in
// what survives. It reports false when the candidate must be rejected.
func sanitize(id Identity, mint string) (Identity, bool) {
	name := strings.TrimSpace(id.Name)
	symbol := strings.TrimSpace(id.Symbol)

	if IsGibberish(name) || IsGibberish(symbol) {
		return Identity{}, false
	}
	if LooksLikeAddress(name) {
		name = UnverifiedName
	}
	if LooksLikeAddress(symbol) {
		symbol = ShortSymbol(mint)
	}

	id.Name, id.Symbol = name, symbol
	return id, true
}
