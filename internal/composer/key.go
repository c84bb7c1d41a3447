package composer

import (
	"crypto/rand"
	"fmt"
)

const (
	keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyLength   = 16
)

// StorageKey prefixes the original file name with a random 16-character
// alphanumeric string so repeated uploads of the same file name never
// overwrite each other.
func StorageKey(fileName string) (string, error) {
	prefix, err := randomChars(keyLength)
	if err != nil {
		return "", fmt.Errorf("storage key: %w", err)
	}
	return prefix + "_" + fileName, nil
}

// randomChars draws n characters uniformly from the 62-character alphabet.
// Bytes >= 248 are rejected so the modulo stays unbiased (248 = 4*62).
func randomChars(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
