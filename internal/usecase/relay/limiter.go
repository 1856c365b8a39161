package relay

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiters agrupa las tres puertas de admisión del proceso. Burst 1:
// el primer llamador pasa al instante y los siguientes esperan el
// hueco. Suavizan ráfagas contra las APIs de los proveedores, no
// llevan contabilidad de cuota.
type Limiters struct {
	Twitch     *rate.Limiter
	Streamlabs *rate.Limiter
	NewUser    *rate.Limiter
}

func NewLimiters() *Limiters {
	return &Limiters{
		Twitch:     rate.NewLimiter(rate.Every(5*time.Second), 1),
		Streamlabs: rate.NewLimiter(rate.Every(5*time.Second), 1),
		NewUser:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}
