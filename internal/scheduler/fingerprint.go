package scheduler

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// occurrenceDomainKey separates occurrence fingerprints from any other keyed
// hash. Changing it invalidates every stored unique_constraint.
var occurrenceDomainKey = [32]byte{
	'm', 'a', 'i', 'n', 't', 'r', 'a', 'c', 'k', '.', 'o', 'c', 'c', 'u', 'r', 'r',
	'e', 'n', 'c', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint derives the unique_constraint value of the instance generated
// for templateID at the occurrence named key.
func Fingerprint(templateID, key string) string {
	h, err := blake3.NewKeyed(occurrenceDomainKey[:])
	if err != nil {
		panic("scheduler: blake3 keyed hash initialization failed: " + err.Error())
	}

	var length [8]byte
	for _, field := range []string{templateID, key} {
		binary.BigEndian.PutUint64(length[:], uint64(len(field)))
		h.Write(length[:])
		h.Write([]byte(field))
	}

	return hex.EncodeToString(h.Sum(nil))
}
