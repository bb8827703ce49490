package utils

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ChainHash вычисляет хеш записи журнала, связанный с хешем предыдущей записи.
// Поля разделяются нулевым байтом, чтобы "ab"+"c" и "a"+"bc" давали разные хеши.
func ChainHash(prevHash string, fields ...string) string {
	var b strings.Builder
	b.WriteString(prevHash)
	for _, f := range fields {
		b.WriteByte(0)
		b.WriteString(f)
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
