// Package tokens genera valores opacos de token y sus hashes de almacenamiento.
//
// El valor plano se entrega una sola vez al emitir; en el store sólo vive
// su SHA-256. La validación re-hashea el valor presentado y busca por hash,
// por eso el hash debe ser determinístico (sin salt).
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// DefaultSecretBytes es la entropía por defecto de un token (256 bits).
const DefaultSecretBytes = 32

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = DefaultSecretBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash devuelve sha256(valor) en base64url sin padding (forma persistida).
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Matches compara en tiempo constante el valor presentado contra un hash
// almacenado.
func Matches(presented, storedHash string) bool {
	h := Hash(presented)
	return subtle.ConstantTimeCompare([]byte(h), []byte(storedHash)) == 1
}
