package biometrics

import "fmt"

// MaxKeyLen is the longest accepted secret key, in bytes.
const MaxKeyLen = 128

// ValidateKey checks that key is 1..MaxKeyLen bytes, starts with an ASCII
// letter or digit and otherwise uses only letters, digits and "._:@/-".
// The rule keeps keys valid as keyring accounts, credential targets and
// D-Bus attribute values alike.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key is empty")
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("key is %d bytes, limit is %d", len(key), MaxKeyLen)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isAlnum(c) {
			continue
		}
		if i == 0 {
			return fmt.Errorf("key must start with a letter or digit")
		}
		switch c {
		case '.', '_', ':', '@', '/', '-':
		default:
			return fmt.Errorf("key contains invalid character %q at offset %d", c, i)
		}
	}
	return nil
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
