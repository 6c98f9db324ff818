package reward

import (
	"crypto/rand"
	"encoding/binary"
)

// Source - источник случайного числа, равномерного на [0, total).
// В проде это CryptoSource, в тестах - фиксированное значение или сид.
type Source interface {
	Draw(total float64) float64
}

// SourceFunc позволяет использовать функцию как Source.
type SourceFunc func(total float64) float64

// Draw вызывает f(total).
func (f SourceFunc) Draw(total float64) float64 { return f(total) }

// Fixed возвращает источник, который всегда выдаёт r.
func Fixed(r float64) Source {
	return SourceFunc(func(float64) float64 { return r })
}

// CryptoSource берёт 53 бита из crypto/rand, поэтому исход открытия
// нельзя предсказать по предыдущим исходам.
type CryptoSource struct{}

// Draw возвращает число из [0, total).
func (CryptoSource) Draw(total float64) float64 {
	var b [8]byte
	// crypto/rand.Read не возвращает ошибок начиная с Go 1.24
	_, _ = rand.Read(b[:])
	u := binary.BigEndian.Uint64(b[:]) >> 11
	return float64(u) / (1 << 53) * total
}
