package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p, err := New(16)
	require.NoError(t, err)
	require.Equal(t, 16, p.Capacity())

	buf := p.Bytes()
	assert.Equal(t, byte(HeadByte), buf[0])
	assert.Equal(t, byte(TailByte), buf[15])
	for i := 1; i < 15; i++ {
		assert.Zero(t, buf[i], "payload byte %d should start zeroed", i)
	}
	assert.True(t, p.Valid())
}

func TestNew_CapacityTooSmall(t *testing.T) {
	for _, capacity := range []int{-1, 0, 1, 2} {
		_, err := New(capacity)
		assert.ErrorIs(t, err, ErrCapacityTooSmall, "capacity %d", capacity)
	}

	// Three bytes is the degenerate but legal minimum: head, check, tail.
	p, err := New(3)
	require.NoError(t, err)
	assert.True(t, p.Valid())
}

func TestClear_PreservesHeadTail(t *testing.T) {
	p := MustNew(8)
	require.True(t, p.LoadData(uint32(0xdeadbeef), 1))
	p.SetCheckByte(0x5a)

	p.Clear()

	buf := p.Bytes()
	assert.Equal(t, byte(HeadByte), buf[0])
	assert.Equal(t, byte(TailByte), buf[7])
	for i := 1; i < 7; i++ {
		assert.Zero(t, buf[i], "byte %d not cleared", i)
	}
}

func TestCopyFrom(t *testing.T) {
	p := MustNew(4)

	src := []byte{HeadByte, 0x11, 0x22, TailByte}
	require.NoError(t, p.CopyFrom(src))
	assert.Equal(t, src, p.Bytes())
	assert.True(t, p.Valid())

	// CopyFrom is verbatim: a malformed source is accepted and simply
	// yields an invalid frame.
	require.NoError(t, p.CopyFrom([]byte{0, 1, 2, 3}))
	assert.False(t, p.Valid())

	assert.Error(t, p.CopyFrom(nil))
	assert.Error(t, p.CopyFrom([]byte{1, 2, 3}))
	assert.Error(t, p.CopyFrom(make([]byte, 5)))
}

func TestClone_Independent(t *testing.T) {
	p := MustNew(8)
	require.True(t, p.LoadData(uint16(0x1234), 1))

	c := p.Clone()
	assert.Equal(t, p.Bytes(), c.Bytes())

	require.True(t, c.LoadData(uint16(0xffff), 1))
	assert.NotEqual(t, p.Bytes(), c.Bytes(), "clone must not share storage")
}

func TestLoadUnload_RoundTrip(t *testing.T) {
	p := MustNew(16)

	require.True(t, p.LoadData(uint8(0x07), 1))
	require.True(t, p.LoadData(int16(-1500), 2))
	require.True(t, p.LoadData(float32(3.25), 4))
	require.True(t, p.LoadData(uint32(0xcafebabe), 8))

	var (
		u8  uint8
		i16 int16
		f32 float32
		u32 uint32
	)
	require.True(t, p.UnloadData(&u8, 1))
	require.True(t, p.UnloadData(&i16, 2))
	require.True(t, p.UnloadData(&f32, 4))
	require.True(t, p.UnloadData(&u32, 8))

	assert.Equal(t, uint8(0x07), u8)
	assert.Equal(t, int16(-1500), i16)
	assert.Equal(t, float32(3.25), f32)
	assert.Equal(t, uint32(0xcafebabe), u32)
}

func TestLoadData_Bounds(t *testing.T) {
	p := MustNew(16)

	// Index 0 would clobber the head byte.
	assert.False(t, p.LoadData(uint8(1), 0))
	assert.False(t, p.LoadData(uint8(1), -1))

	// Fields are confined to the payload region [1, 13] for capacity 16:
	// a single byte fits up to index 13, but the check byte (14) can
	// never carry field data.
	assert.True(t, p.LoadData(uint8(1), 13))
	assert.False(t, p.LoadData(uint8(1), 14))

	// A multi-byte field starting on the last payload byte is rejected
	// even though its tail would physically fit over the check byte.
	assert.True(t, p.LoadData(uint16(1), 12))
	assert.False(t, p.LoadData(uint16(1), 13))
	assert.True(t, p.LoadData(uint32(1), 10))
	assert.False(t, p.LoadData(uint32(1), 11))

	// A value with no fixed binary size is rejected outright.
	assert.False(t, p.LoadData("not fixed size", 1))
	assert.False(t, p.LoadData(struct{ S string }{"x"}, 1))
}

func TestUnloadData_Bounds(t *testing.T) {
	p := MustNew(16)
	require.True(t, p.LoadData(uint32(42), 1))

	var v uint32
	assert.False(t, p.UnloadData(&v, 0))
	assert.False(t, p.UnloadData(&v, 11))
	assert.Zero(t, v, "failed unload must not write the output")

	var s string
	assert.False(t, p.UnloadData(&s, 1))
}

func TestSetCheckByte(t *testing.T) {
	p := MustNew(16)
	p.SetCheckByte(0xb7)
	assert.Equal(t, byte(0xb7), p.CheckByte())
	assert.Equal(t, byte(0xb7), p.Bytes()[14])
	// The check byte plays no part in validity.
	assert.True(t, p.Valid())
}

func TestFrameValid(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want bool
	}{
		{"well formed", []byte{HeadByte, 0, 0, TailByte}, true},
		{"minimum size", []byte{HeadByte, 0, TailByte}, true},
		{"bad head", []byte{0x00, 0, 0, TailByte}, false},
		{"bad tail", []byte{HeadByte, 0, 0, 0x00}, false},
		{"too short", []byte{HeadByte, TailByte}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameValid(tt.buf))
		})
	}
}
