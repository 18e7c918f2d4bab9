package merge

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/xuri/excelize/v2"
)

// Source is one input spreadsheet: an identifier plus the file's byte
// content. The bytes are treated as immutable once captured; every read
// opens its own reader over them, so concurrent reads of different sheets
// never share a file cursor.
type Source struct {
	Name string
	Data []byte
}

// open returns an independent container handle over the source bytes.
// The caller owns the handle and must close it.
func (s Source) open() (*excelize.File, error) {
	return excelize.OpenReader(bytes.NewReader(s.Data))
}

// Fingerprint returns a deterministic hex digest identifying a source set:
// the ordered sequence of (name, size, content hash) tuples. Two uploads
// with the same files in the same order produce the same fingerprint, which
// keys the result cache.
func Fingerprint(sources []Source) string {
	h := sha256.New()
	var sz [8]byte
	for _, src := range sources {
		h.Write([]byte(src.Name))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(sz[:], uint64(len(src.Data)))
		h.Write(sz[:])
		content := sha256.Sum256(src.Data)
		h.Write(content[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
