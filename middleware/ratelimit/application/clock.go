package application

import "time"

// SystemClock usa time.Now; as subtrações entre instantes usam a leitura
// monotônica que time.Time carrega.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
