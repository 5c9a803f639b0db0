package domain

import "time"

// Clock fornece o "agora" usado pela função de decisão e pelo janitor.
// O store nunca consulta o relógio diretamente.
type Clock interface {
	Now() time.Time
}
