// Package variant parses protein-level variant notation into canonical keys
// so records from different MAVE datasets collapse onto the same identity.
package variant

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reserved alternate-residue sentinels. Terminal covers nonsense/stop
// variants (Ter, *), Synonymous covers p.= style no-change variants.
const (
	Terminal   = "*"
	Synonymous = "="
)

// ErrUnparseable is returned for notation that cannot be resolved into a
// (position, ref, alt) triple. Callers drop the record and count the failure.
var ErrUnparseable = errors.New("unparseable notation")

// Key is the canonical identity of a protein-level variant. Two notation
// strings that resolve to the same Key are the same logical variant
// regardless of which experiment or formatting style they came from.
type Key struct {
	Position int    `json:"position"`
	Ref      string `json:"ref"`
	Alt      string `json:"alt"`
}

// String renders the key in compact one-letter form, e.g. "V57Q", "R10*",
// "L12=".
func (k Key) String() string {
	return fmt.Sprintf("%s%d%s", k.Ref, k.Position, k.Alt)
}

// Less orders keys by position, then reference residue, then alternate.
// Used to give matrices a deterministic row order.
func (k Key) Less(other Key) bool {
	if k.Position != other.Position {
		return k.Position < other.Position
	}
	if k.Ref != other.Ref {
		return k.Ref < other.Ref
	}
	return k.Alt < other.Alt
}

var threeToOne = map[string]string{
	"Ala": "A", "Arg": "R", "Asn": "N", "Asp": "D", "Cys": "C",
	"Gln": "Q", "Glu": "E", "Gly": "G", "His": "H", "Ile": "I",
	"Leu": "L", "Lys": "K", "Met": "M", "Phe": "F", "Pro": "P",
	"Ser": "S", "Thr": "T", "Trp": "W", "Tyr": "Y", "Val": "V",
	"Ter": Terminal,
}

var oneLetter = map[string]bool{
	"A": true, "R": true, "N": true, "D": true, "C": true,
	"Q": true, "E": true, "G": true, "H": true, "I": true,
	"L": true, "K": true, "M": true, "F": true, "P": true,
	"S": true, "T": true, "W": true, "Y": true, "V": true,
}

// tokenRe captures ref residue, position, and alt residue (or a terminal /
// synonymous marker). Residues may be one- or three-letter codes.
var tokenRe = regexp.MustCompile(`^([A-Za-z]{1,3})(\d+)([A-Za-z]{1,3}|\*|=)$`)

// Resolve parses a single variant token into a Key. Accepted forms include
// "Val57Gln", "V57Q", "p.Val57Gln", "p.(Arg10Ter)", "R10*", and "Leu12=".
// Anything that does not yield a positive position and recognizable
// residues fails with ErrUnparseable; the input is never coerced.
func Resolve(token string) (Key, error) {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "p.")
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return Key{}, fmt.Errorf("%w: empty token", ErrUnparseable)
	}

	m := tokenRe.FindStringSubmatch(s)
	if m == nil {
		return Key{}, fmt.Errorf("%w: %q", ErrUnparseable, token)
	}

	ref, ok := normalizeResidue(m[1])
	if !ok || ref == Terminal {
		return Key{}, fmt.Errorf("%w: bad reference residue in %q", ErrUnparseable, token)
	}

	pos, err := strconv.Atoi(m[2])
	if err != nil || pos < 1 {
		return Key{}, fmt.Errorf("%w: bad position in %q", ErrUnparseable, token)
	}

	alt, ok := normalizeAlt(m[3])
	if !ok {
		return Key{}, fmt.Errorf("%w: bad alternate residue in %q", ErrUnparseable, token)
	}

	return Key{Position: pos, Ref: ref, Alt: alt}, nil
}

// Split expands composite HGVS protein notation into individual tokens.
// "p.[Val57Gln;Tyr9Pro]" yields ["Val57Gln", "Tyr9Pro"]. Empty input and
// the bare synonymous marker "p.=" yield no tokens.
func Split(hgvs string) []string {
	s := strings.TrimSpace(hgvs)
	if s == "" || s == "p.=" {
		return nil
	}
	s = strings.ReplaceAll(s, "p.[", "")
	s = strings.ReplaceAll(s, "]", "")

	parts := strings.Split(s, ";")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func normalizeResidue(s string) (string, bool) {
	switch len(s) {
	case 1:
		u := strings.ToUpper(s)
		if oneLetter[u] {
			return u, true
		}
	case 3:
		title := strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
		if one, ok := threeToOne[title]; ok {
			return one, true
		}
	}
	return "", false
}

func normalizeAlt(s string) (string, bool) {
	switch s {
	case Terminal, Synonymous:
		return s, true
	}
	return normalizeResidue(s)
}
