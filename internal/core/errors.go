package core

import "errors"

// Taxonomía de errores del core. Los servicios los envuelven con %w;
// los callers comparan con errors.Is.
var (
	// ErrNotFound: la identidad/token/relación referenciada no existe.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKind: kind fuera del set cerrado.
	ErrInvalidKind = errors.New("invalid kind")

	// ErrInvalidState: la operación viola una transición de estado.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidToken: el token presentado es desconocido, expirado o
	// revocado. Deliberadamente no se distingue cuál de los tres casos
	// aplica (no filtrar información sobre el espacio de tokens).
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthorized: la identidad que redime no es endpoint del token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable: timeout o fallo de I/O del store durable.
	// El core no reintenta; el caller decide (con backoff).
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflict: violación de unicidad interna del store.
	ErrConflict = errors.New("conflict")
)
