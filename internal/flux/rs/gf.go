package rs

import "sync"

// primitivePoly is x^8 + x^4 + x^3 + x^2 + 1.
const primitivePoly = 0x11D

// gfTables holds the GF(256) antilog/log tables. exp is doubled so that
// exp[log[a]+log[b]] never needs a modulo.
type gfTables struct {
	exp [512]byte
	log [256]byte
}

var (
	tablesOnce sync.Once
	tables     *gfTables
)

// field returns the shared tables, building them on first use. The tables
// are never written after construction.
func field() *gfTables {
	tablesOnce.Do(func() {
		t := &gfTables{}
		x := 1
		for i := 0; i < 255; i++ {
			t.exp[i] = byte(x)
			t.log[x] = byte(i)
			x <<= 1
			if x&0x100 != 0 {
				x ^= primitivePoly
			}
		}
		for i := 255; i < 512; i++ {
			t.exp[i] = t.exp[i-255]
		}
		tables = t
	})
	return tables
}

func (t *gfTables) mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return t.exp[int(t.log[a])+int(t.log[b])]
}

// div panics on b == 0; callers check first.
func (t *gfTables) div(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return t.exp[(int(t.log[a])+255-int(t.log[b]))%255]
}

func (t *gfTables) pow(e int) byte {
	e %= 255
	if e < 0 {
		e += 255
	}
	return t.exp[e]
}

func (t *gfTables) inv(a byte) byte {
	return t.exp[255-int(t.log[a])]
}

// evalAsc evaluates a polynomial stored lowest degree first.
func (t *gfTables) evalAsc(p []byte, x byte) byte {
	var y byte
	for i := len(p) - 1; i >= 0; i-- {
		y = t.mul(y, x) ^ p[i]
	}
	return y
}

// evalDesc evaluates a polynomial stored highest degree first, which is
// how codewords are laid out in a buffer.
func (t *gfTables) evalDesc(p []byte, x byte) byte {
	var y byte
	for _, c := range p {
		y = t.mul(y, x) ^ c
	}
	return y
}
