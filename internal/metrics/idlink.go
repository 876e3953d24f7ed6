package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del core. Viven en un paquete standalone para evitar
// ciclos de import entre services, store y cmd.

var (
	IdentitiesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idlink_identities_created_total",
		Help: "Identidades creadas, por kind",
	}, []string{"kind"})

	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idlink_tokens_issued_total",
		Help: "Tokens emitidos",
	})

	TokenValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idlink_token_validations_total",
		Help: "Validaciones de token, por resultado (ok|invalid)",
	}, []string{"result"})

	TokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idlink_tokens_revoked_total",
		Help: "Tokens revocados",
	})

	TokensSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idlink_tokens_swept_total",
		Help: "Tokens transicionados a expired por el sweep",
	})

	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "idlink_sweep_duration_ms",
		Help:    "Duración del sweep de expiración en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idlink_redemptions_total",
		Help: "Redenciones de token, por resultado (created|reaffirmed|failed)",
	}, []string{"result"})

	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idlink_cache_hits_total",
		Help: "Hits de cache, por record set (identity|token|relationship)",
	}, []string{"set"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idlink_cache_misses_total",
		Help: "Misses de cache, por record set",
	}, []string{"set"})

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idlink_events_dropped_total",
		Help: "Eventos descartados por subscribers lentos",
	})

	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idlink_store_errors_total",
		Help: "Errores del store durable (timeouts incluidos), por operación",
	}, []string{"op"})
)

// Register registra todas las métricas en el registry dado (o el default si
// es nil). Tolera AlreadyRegisteredError para soportar múltiples servicios
// en un mismo proceso.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{
		IdentitiesCreated, TokensIssued, TokenValidations, TokensRevoked,
		TokensSwept, SweepDuration, Redemptions, CacheHits, CacheMisses,
		EventsDropped, StoreErrors,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
