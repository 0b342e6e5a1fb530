package rs

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lcgBytes returns a deterministic pseudo-random message.
func lcgBytes(seed uint32, n int) []byte {
	out := make([]byte, n)
	s := seed
	for i := range out {
		s = (s*1103515245 + 12345) & 0x7fffffff
		out[i] = byte(s >> 16)
	}
	return out
}

func TestField(t *testing.T) {
	t.Parallel()

	gf := field()
	assert.Equal(t, byte(1), gf.exp[0])
	assert.Equal(t, byte(0x1D), gf.exp[8])
	assert.Equal(t, gf.exp[3], gf.exp[258])
	for a := 1; a < 256; a++ {
		assert.Equal(t, byte(1), gf.mul(byte(a), gf.inv(byte(a))), "a=%d", a)
	}
	assert.Same(t, gf, field())
}

func TestNewCodec_Bounds(t *testing.T) {
	t.Parallel()

	for _, n := range []int{-1, 0, 1, 129, 256} {
		_, err := NewCodec(n)
		assert.ErrorIs(t, err, ErrInvalidParity, "n=%d", n)
	}
	for _, n := range []int{2, 4, 64, 128} {
		c, err := NewCodec(n)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, c.ParitySymbols())
		assert.Len(t, c.gen, n+1)
	}
}

func TestEncode_ProducesCodeword(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(10)
	require.NoError(t, err)

	msg := []byte("flux transition")
	cw, err := c.Encode(msg)
	require.NoError(t, err)
	assert.Len(t, cw, len(msg)+10)
	assert.Equal(t, msg, cw[:len(msg)])
	assert.True(t, c.Check(cw))

	_, err = c.Encode(make([]byte, 250))
	assert.ErrorIs(t, err, ErrLongBuffer)
}

func TestDecode_TwoErrorsInZeroMessage(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(4)
	require.NoError(t, err)

	buf := make([]byte, 8+4)
	buf[2] = 0x5A
	buf[9] = 0x13

	n, err := c.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, make([]byte, 12), buf)
}

func TestDecode_CleanCodeword(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(6)
	require.NoError(t, err)
	cw, err := c.Encode([]byte{1, 2, 3, 4})
	require.NoError(t, err)

	n, err := c.Decode(cw)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, nsym := range []int{2, 4, 8, 16, 32, 64, 128} {
		nsym := nsym
		t.Run(fmt.Sprintf("nsym=%d", nsym), func(t *testing.T) {
			t.Parallel()

			c, err := NewCodec(nsym)
			require.NoError(t, err)

			k := 64
			if k > MaxCodewordLength-nsym {
				k = MaxCodewordLength - nsym
			}
			cw, err := c.Encode(lcgBytes(uint32(nsym), k))
			require.NoError(t, err)

			for e := 0; e <= nsym/2; e++ {
				buf := append([]byte(nil), cw...)
				for i := 0; i < e; i++ {
					v := byte(i*29 + 1)
					if v == 0 {
						v = 1
					}
					buf[(i*7)%len(buf)] ^= v
				}

				n, err := c.Decode(buf)
				require.NoError(t, err, "errors=%d", e)
				assert.Equal(t, e, n, "errors=%d", e)
				assert.True(t, bytes.Equal(cw, buf), "errors=%d: buffer not restored", e)
			}
		})
	}
}

func TestDecode_TooManyErrorsLeavesBufferUntouched(t *testing.T) {
	t.Parallel()

	msg := make([]byte, 16)
	for i := range msg {
		msg[i] = byte(i + 1)
	}
	corrupt := func(nsym int, positions ...int) (*Codec, []byte) {
		c, err := NewCodec(nsym)
		require.NoError(t, err)
		buf, err := c.Encode(msg)
		require.NoError(t, err)
		for i, p := range positions {
			buf[p] ^= byte(0x5A + i*17)
		}
		return c, buf
	}

	// Parity of a full-length codeword whose only data symbol sits at
	// degree 254. Shortened to 40 symbols, the syndromes describe a single
	// error outside the buffer.
	c8, err := NewCodec(8)
	require.NoError(t, err)
	long := make([]byte, MaxCodewordLength-8)
	long[0] = 0x37
	full, err := c8.Encode(long)
	require.NoError(t, err)
	shortened := append(make([]byte, 32), full[len(long):]...)

	c5, five := corrupt(8, 0, 3, 7, 12, 20)
	c9, nine := corrupt(16, 0, 2, 4, 6, 8, 10, 12, 14, 16)
	cases := []struct {
		name  string
		codec *Codec
		buf   []byte
		want  error
	}{
		{"error outside shortened codeword", c8, shortened, ErrLocatorMismatch},
		{"five errors nsym 8", c5, five, ErrUncorrectable},
		{"nine errors nsym 16", c9, nine, ErrUncorrectable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			corrupted := append([]byte(nil), tc.buf...)
			n, err := tc.codec.Decode(tc.buf)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrUncorrectable)
			assert.Equal(t, corrupted, tc.buf, "buffer modified on failure")
		})
	}

	// The same symbols at full length are one correctable error.
	whole := append(make([]byte, len(long)), full[len(long):]...)
	n, err := c8.Decode(whole)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, full, whole)
}

func TestDecode_BufferLength(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(4)
	require.NoError(t, err)

	_, err = c.Decode(make([]byte, 4))
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = c.Decode(nil)
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = c.Decode(make([]byte, 256))
	assert.ErrorIs(t, err, ErrLongBuffer)
}

func TestForney_RepeatedRootIsDegenerate(t *testing.T) {
	t.Parallel()

	gf := field()
	// (1 + Xx)^2 = 1 + X^2 x^2 has a zero formal derivative.
	x := gf.pow(5)
	lambda := []byte{1, 0, gf.mul(x, x)}
	_, err := forney(gf, lambda, []byte{1}, []int{34}, 40)
	assert.ErrorIs(t, err, ErrDegenerate)
	assert.ErrorIs(t, err, ErrUncorrectable)

	mags, err := forney(gf, []byte{1, x}, []byte{7}, []int{34}, 40)
	require.NoError(t, err)
	assert.Len(t, mags, 1)
}

func TestDecode_ConcurrentCodecs(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			c, err := NewCodec(2 + g%8*2)
			if err != nil {
				errs <- err
				return
			}
			cw, err := c.Encode(lcgBytes(uint32(g), 32))
			if err != nil {
				errs <- err
				return
			}
			buf := append([]byte(nil), cw...)
			buf[g%len(buf)] ^= 0xA5
			if n, err := c.Decode(buf); err != nil || n != 1 || !bytes.Equal(buf, cw) {
				errs <- fmt.Errorf("goroutine %d: n=%d err=%v", g, n, err)
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
