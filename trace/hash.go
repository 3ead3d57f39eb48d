package trace

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/optichain/provenance-backend/interfaces"
)

// hashDomain separates trace event preimages from every other SHA-256 use in
// the system and versions the layout.
const hashDomain = "optichain/trace-event/v1"

// ComputeEventHash derives an event's DocumentHash from its identifying
// fields and the previous hash. The preimage is a fixed binary layout:
//
//	domain || lp(productID) || lp(stage) || lp(issuer) ||
//	be64(timestamp unix nanos) || certFlag || cert[32]? || prevHash[32]
//
// where lp is a big-endian uint32 length prefix. Length prefixes keep
// distinct field splits from colliding. Advisory fields (environment,
// extensions, issuer display name, sequence) are deliberately excluded:
// they may be enriched later without invalidating the chain.
func ComputeEventHash(event interfaces.TraceEvent) interfaces.EventHash {
	h := sha256.New()
	h.Write([]byte(hashDomain))

	writeLengthPrefixed(h, []byte(event.ProductID))
	writeLengthPrefixed(h, []byte(event.Stage))
	writeLengthPrefixed(h, []byte(event.Issuer))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(event.Timestamp.UnixNano()))
	h.Write(ts[:])

	if event.Certificate != nil {
		h.Write([]byte{1})
		h.Write(event.Certificate.Bytes())
	} else {
		h.Write([]byte{0})
	}

	h.Write(event.PreviousHash.Bytes())

	var hash interfaces.EventHash
	copy(hash[:], h.Sum(nil))
	return hash
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lp [4]byte
	binary.BigEndian.PutUint32(lp[:], uint32(len(b)))
	h.Write(lp[:])
	h.Write(b)
}
