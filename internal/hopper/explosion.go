package hopper

import (
	"crypto/rand"
	"encoding/binary"
)

// ExplosionSource categorizes what blew up. The category decides the chance
// that a destroyed hopper drops as a recoverable item instead of being lost.
type ExplosionSource int

const (
	SourceBlock ExplosionSource = iota
	SourceCreeper
	SourceFireball
	SourcePrimedTNT
	SourceDragon
	SourceWither
	SourceMinecart
	SourceLightning
)

func (s ExplosionSource) String() string {
	switch s {
	case SourceBlock:
		return "block"
	case SourceCreeper:
		return "creeper"
	case SourceFireball:
		return "fireball"
	case SourcePrimedTNT:
		return "tnt"
	case SourceDragon:
		return "dragon"
	case SourceWither:
		return "wither"
	case SourceMinecart:
		return "minecart"
	case SourceLightning:
		return "lightning"
	default:
		return "block"
	}
}

// DropChance returns the probability that a hopper survives this source as a
// dropped item.
func (s ExplosionSource) DropChance() float64 {
	switch s {
	case SourceCreeper:
		return 0.15
	case SourceFireball:
		return 0.20
	case SourcePrimedTNT:
		return 0.30
	case SourceDragon:
		return 0.10
	case SourceWither:
		return 0.05
	case SourceMinecart:
		return 0.18
	case SourceLightning:
		return 0.12
	default:
		return 0.25
	}
}

// secureFloat64 draws a uniform value in [0,1) from crypto/rand. The draw
// gates permanent data loss, so it must not come from a seedable or biased
// source.
func secureFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is unrecoverable process state; treat the
		// hopper as lost rather than guessing.
		return 1
	}
	// 53 random bits, same construction as math/rand's Float64.
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
}
