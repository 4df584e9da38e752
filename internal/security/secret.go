package security

// SecretBuffer holds decrypted key material for the duration of one call.
// The zero value is empty and ready for DecryptInto.
//
// Always pair a filled buffer with a deferred Wipe.
type SecretBuffer struct {
	b []byte
}

// Bytes exposes the secret. The slice aliases the buffer and is zeroed by Wipe;
// do not retain it.
func (s *SecretBuffer) Bytes() []byte {
	return s.b
}

func (s *SecretBuffer) Len() int {
	return len(s.b)
}

// Wipe zeroes the secret and empties the buffer. Safe to call repeatedly.
func (s *SecretBuffer) Wipe() {
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// String never prints key material.
func (s *SecretBuffer) String() string {
	return "[REDACTED]"
}
