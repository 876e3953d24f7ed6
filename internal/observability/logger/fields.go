package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar del dominio. Usar estos helpers en lugar de zap.String
// suelto mantiene los nombres de campo consistentes entre componentes.

// IdentityID crea un campo para el ID de una identidad.
func IdentityID(v string) zap.Field {
	return zap.String("identity_id", v)
}

// Kind crea un campo para el kind de una identidad.
func Kind(v string) zap.Field {
	return zap.String("kind", v)
}

// TokenHash crea un campo para el hash de un token (nunca el valor plano).
func TokenHash(v string) zap.Field {
	return zap.String("token_hash", v)
}

// SourceID crea un campo para el endpoint origen de un token/relación.
func SourceID(v string) zap.Field {
	return zap.String("source_id", v)
}

// TargetID crea un campo para el endpoint destino de un token/relación.
func TargetID(v string) zap.Field {
	return zap.String("target_id", v)
}

// RelType crea un campo para el tipo de relación.
func RelType(v string) zap.Field {
	return zap.String("relationship_type", v)
}

// Op crea un campo para el nombre de la operación.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Component crea un campo para el componente que emite el log.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Driver crea un campo para el driver de store/cache en uso.
func Driver(v string) zap.Field {
	return zap.String("driver", v)
}

// Duration crea un campo para duraciones.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Count crea un campo para conteos.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Err crea un campo para errores.
func Err(err error) zap.Field {
	return zap.Error(err)
}
