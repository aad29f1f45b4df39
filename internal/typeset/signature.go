package typeset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Domain prefix for auxiliary-state signatures. The version suffix
// enables future algorithm migration without colliding with old values.
const domainAuxSig = "pretex/auxsig/v1"

// AuxSignature computes the convergence signature for one document: a
// domain-separated SHA-256 over the sorted (extension, content) list of
// auxiliary files sharing the document's base name. Missing files are
// skipped; if no auxiliary file exists at all the signature is empty,
// which the orchestrator treats as immediately converged.
func AuxSignature(docPath string, exts []string) (string, error) {
	base := strings.TrimSuffix(docPath, filepath.Ext(docPath))

	sorted := slices.Clone(exts)
	slices.Sort(sorted)

	h := sha256.New()
	h.Write([]byte(domainAuxSig))
	h.Write([]byte{0x00}) // null separator prevents boundary ambiguity

	found := false
	for _, ext := range sorted {
		path := base + ext
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reading auxiliary state %s: %w", path, err)
		}
		found = true
		h.Write([]byte(ext))
		h.Write([]byte{0x00})
		h.Write(data)
		h.Write([]byte{0x00})
	}
	if !found {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
