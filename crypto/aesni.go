package crypto

import "github.com/klauspost/cpuid/v2"

// Encryption mask bits as carried in ClientHello.EncryptionMask.
const (
	MaskAES256GCM        uint32 = 1
	MaskChaCha20Poly1305 uint32 = 2
)

// HasAESHardware reports whether the running CPU has hardware-accelerated
// AES instructions. The authenticator uses this to decide between
// AES-256-GCM and ChaCha20-Poly1305 when the client offers both.
func HasAESHardware() bool {
	return cpuid.CPU.Supports(cpuid.AESNI)
}

// SelectSuite implements the server-side AEAD selection rule: AES-256-GCM
// if the client offered it and the host has AES hardware acceleration,
// otherwise ChaCha20-Poly1305 (which is faster without AES-NI).
func SelectSuite(offeredMask uint32) (Suite, bool) {
	if offeredMask&MaskAES256GCM != 0 && HasAESHardware() {
		return SuiteAES256GCM, true
	}
	if offeredMask&MaskChaCha20Poly1305 != 0 {
		return SuiteChaCha20Poly1305, true
	}
	if offeredMask&MaskAES256GCM != 0 {
		// AES offered without ChaCha fallback and no hardware support:
		// still usable, just not the fast path.
		return SuiteAES256GCM, true
	}
	return 0, false
}
