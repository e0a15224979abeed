package codec

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// BlobHash returns the git object id of data stored as a blob: the hex
// SHA-1 of "blob <len>\x00" followed by data. Stores speaking the contents
// dialect report this value as the document hash.
func BlobHash(data []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
