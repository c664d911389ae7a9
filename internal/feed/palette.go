package feed

import "math/rand/v2"

// Rand is the randomness source used for attribution, heart placement and ambient drift.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// SystemRand draws from the process-wide math/rand/v2 source, which is safe for concurrent use.
var SystemRand Rand = systemRand{}

type systemRand struct{}

func (systemRand) Float64() float64 { return rand.Float64() }
func (systemRand) IntN(n int) int   { return rand.IntN(n) }

// Colors used for viewer names and hearts.
var Colors = []string{"#FF0055", "#00F0FF", "#00FF7F", "#FFD700", "#FF8C00", "#DA70D6", "#FFFFFF"}

// Usernames of the simulated audience.
var Usernames = []string{"小明", "阿杰", "茜茜", "大伟", "安娜", "子轩", "小美", "老张", "Cathy", "Tom", "想飞的鱼", "快乐星球"}

// PickColor returns a random entry of Colors.
func PickColor(r Rand) string { return Colors[r.IntN(len(Colors))] }

// PickUsername returns a random entry of Usernames.
func PickUsername(r Rand) string { return Usernames[r.IntN(len(Usernames))] }
