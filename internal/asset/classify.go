package asset

import (
	"math/big"
	"regexp"
	"strings"
)

// Kind is the render-time classification of an asset
type Kind int

const (
	Token Kind = iota
	NFT
)

func (k Kind) String() string {
	if k == NFT {
		return "nft"
	}
	return "token"
}

var (
	one = big.NewInt(1)

	// "Cool #42", "Badge (3)", "Print (3/10)"
	numberedNameRegex = regexp.MustCompile(`(#\d+|\(\d+(/\d+)?\))\s*$`)

	nftMetadataKeys  = []string{"image", "mediaType", "files"}
	nftNameFragments = []string{"series", "edition", "collection"}
)

// Classify decides whether an asset renders as an NFT or a fungible token.
// Rules run in order and the first match wins.
func Classify(r *Record) Kind {
	if r.Amount().Cmp(one) > 0 {
		return Token
	}
	if hasNFTMetadata(r.OnchainMetadata) || hasNFTMetadata(r.RegistryMetadata) {
		return NFT
	}
	if numberedNameRegex.MatchString(r.Name()) {
		return NFT
	}
	return Token
}

func hasNFTMetadata(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for _, key := range nftMetadataKeys {
		if v, ok := m[key]; ok && !isEmpty(v) {
			return true
		}
	}

	name := strings.ToLower(stringField(m, "name"))
	for _, frag := range nftNameFragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
