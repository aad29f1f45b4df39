package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for document cache keys. The version suffix enables
// future algorithm migration without matching stale entries.
const domainDocKey = "pretex/dockey/v1"

// DocumentKey computes the content key for one document's evaluation:
// a domain-separated SHA-256 over the ordered fragment code list and the
// template arguments. Strings are NFC-normalized first so that
// equivalent Unicode spellings of the same code share a key.
func DocumentKey(fragments, args []string) string {
	h := sha256.New()
	h.Write([]byte(domainDocKey))
	h.Write([]byte{0x00})

	writeList := func(items []string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(items)))
		h.Write(n[:])
		for _, item := range items {
			s := norm.NFC.String(item)
			binary.BigEndian.PutUint64(n[:], uint64(len(s)))
			h.Write(n[:])
			h.Write([]byte(s))
		}
	}
	writeList(fragments)
	writeList(args)

	return hex.EncodeToString(h.Sum(nil))
}

// Dep records one file dependency and the mtime observed when the entry
// was stored.
type Dep struct {
	Path    string
	MTimeNS int64
}

// StatDeps captures the current mtimes of the given paths. A missing
// file records mtime 0, which stays a hit only as long as it remains
// missing.
func StatDeps(paths []string) []Dep {
	deps := make([]Dep, 0, len(paths))
	for _, p := range paths {
		deps = append(deps, Dep{Path: p, MTimeNS: mtimeNS(p)})
	}
	return deps
}

// Fresh re-stats every dependency and reports whether all are unchanged.
func Fresh(deps []Dep) bool {
	for _, d := range deps {
		if mtimeNS(d.Path) != d.MTimeNS {
			return false
		}
	}
	return true
}

func mtimeNS(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}
