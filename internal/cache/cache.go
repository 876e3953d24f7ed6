// Package cache define la interfaz de cache en memoria usada por los
// services como mirror no-autoritativo del store durable.
//
// Backends:
//   - memory (in-process, go-cache)
//   - redis (compartido entre procesos)
//
// El cache nunca es fuente de verdad: toda mutación invalida la entrada
// ANTES de confirmar la escritura durable.
package cache

import "time"

// Cache es un K/V de bytes con TTL por entrada.
type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
