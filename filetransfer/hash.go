package transfer

import "crypto/sha256"

// HashChunk computes the SHA-256 digest of a packet's uncompressed
// payload, used by buildPacket/readPacket to detect corruption a
// receiver's erasure and decompression steps did not already catch.
func HashChunk(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
