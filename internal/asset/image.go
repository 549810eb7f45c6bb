package asset

import "strings"

const arweaveGateway = "https://arweave.net/"

// ResolveImage finds a displayable image URL for the asset, trying the
// on-chain image, the first on-chain file, then the token registry logo.
// Returns "" when nothing usable is present.
func ResolveImage(r *Record, ipfsGateway string) string {
	if src := joinString(r.OnchainMetadata["image"]); src != "" {
		return normalizeURI(src, ipfsGateway)
	}

	if files, ok := r.OnchainMetadata["files"].([]any); ok && len(files) > 0 {
		if f, ok := files[0].(map[string]any); ok {
			if src := joinString(f["src"]); src != "" {
				return normalizeURI(src, ipfsGateway)
			}
		}
	}

	if logo := joinString(r.RegistryMetadata["logo"]); logo != "" {
		if hasScheme(logo) {
			return normalizeURI(logo, ipfsGateway)
		}
		// registry logos are bare base64 PNGs
		return "data:image/png;base64," + logo
	}

	if src := joinString(r.RegistryMetadata["image"]); src != "" {
		return normalizeURI(src, ipfsGateway)
	}

	return ""
}

func normalizeURI(src, ipfsGateway string) string {
	src = strings.TrimSpace(src)
	if ipfsGateway != "" && !strings.HasSuffix(ipfsGateway, "/") {
		ipfsGateway += "/"
	}

	switch {
	case strings.HasPrefix(src, "ipfs://ipfs/"):
		return ipfsGateway + strings.TrimPrefix(src, "ipfs://ipfs/")
	case strings.HasPrefix(src, "ipfs://"):
		return ipfsGateway + strings.TrimPrefix(src, "ipfs://")
	case strings.HasPrefix(src, "ar://"):
		return arweaveGateway + strings.TrimPrefix(src, "ar://")
	case isBareCID(src):
		return ipfsGateway + src
	default:
		return src
	}
}

func hasScheme(s string) bool {
	for _, p := range []string{"http://", "https://", "ipfs://", "ar://", "data:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isBareCID(s string) bool {
	return (strings.HasPrefix(s, "Qm") && len(s) == 46) ||
		(strings.HasPrefix(s, "bafy") && len(s) > 50 && !strings.Contains(s, "/"))
}
