package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingBuffer_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity int
		channels int
		wantErr  bool
	}{
		{"valid mono", 48000, 1, false},
		{"valid stereo", 48000, 2, false},
		{"zero capacity", 0, 1, true},
		{"negative capacity", -1, 1, true},
		{"zero channels", 48000, 0, true},
		{"negative channels", 48000, -2, true},
		{"over one gigabyte", 1 << 28, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rb, err := NewRingBuffer(tt.capacity, tt.channels)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, rb)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.capacity, rb.Capacity())
				assert.Equal(t, tt.channels, rb.Channels())
			}
		})
	}
}

func TestRingBuffer_WrapReconstruction(t *testing.T) {
	t.Parallel()

	// Seven frames into a five frame buffer: cursor wraps to 2, and the
	// chronological history is the last five frames written.
	rb, err := NewRingBuffer(5, 1)
	require.NoError(t, err)

	rb.Write([]float32{1, 2, 3, 4, 5, 6, 7}, 7)

	assert.Equal(t, 2, rb.Cursor())
	assert.True(t, rb.Filled())
	assert.Equal(t, []float32{3, 4, 5, 6, 7}, rb.Snapshot())
}

func TestRingBuffer_PartialFill(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(8, 1)
	require.NoError(t, err)

	rb.Write([]float32{1, 2, 3}, 3)

	assert.Equal(t, 3, rb.Cursor())
	assert.False(t, rb.Filled())
	assert.Equal(t, []float32{1, 2, 3}, rb.Snapshot())
}

func TestRingBuffer_ExactFill(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(4, 1)
	require.NoError(t, err)

	rb.Write([]float32{1, 2, 3, 4}, 4)

	// Cursor wraps back to zero the moment capacity is reached.
	assert.Equal(t, 0, rb.Cursor())
	assert.True(t, rb.Filled())
	assert.Equal(t, []float32{1, 2, 3, 4}, rb.Snapshot())
}

func TestRingBuffer_CursorInvariant(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(16, 1)
	require.NoError(t, err)

	block := make([]float32, 5)
	for i := 0; i < 40; i++ {
		rb.Write(block, 5)
		cursor := rb.Cursor()
		assert.GreaterOrEqual(t, cursor, 0)
		assert.Less(t, cursor, 16)
	}
	assert.True(t, rb.Filled())
}

func TestRingBuffer_FilledOnlyAfterWrap(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(10, 1)
	require.NoError(t, err)

	block := make([]float32, 3)
	total := 0
	for total+3 < 10 {
		rb.Write(block, 3)
		total += 3
		assert.False(t, rb.Filled(), "filled before capacity reached at %d frames", total)
	}

	rb.Write(block, 3)
	assert.True(t, rb.Filled())
}

func TestRingBuffer_Interleaved(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(3, 2)
	require.NoError(t, err)

	// Four stereo frames into a three frame buffer; frame 1 is overwritten.
	rb.Write([]float32{
		1, -1,
		2, -2,
		3, -3,
		4, -4,
	}, 4)

	assert.Equal(t, 1, rb.Cursor())
	assert.True(t, rb.Filled())
	assert.Equal(t, []float32{2, -2, 3, -3, 4, -4}, rb.Snapshot())
}

func TestRingBuffer_WriteLargerThanCapacity(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(4, 1)
	require.NoError(t, err)

	samples := make([]float32, 11)
	for i := range samples {
		samples[i] = float32(i)
	}
	rb.Write(samples, 11)

	// Only the last four frames survive, in order.
	assert.Equal(t, []float32{7, 8, 9, 10}, rb.Snapshot())
}

func TestRingBuffer_IgnoresBadInput(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(4, 2)
	require.NoError(t, err)

	rb.Write(nil, 0)
	rb.Write([]float32{1}, 1) // too few samples for the claimed frame count
	rb.Write([]float32{1, 2}, -1)

	assert.Equal(t, 0, rb.Cursor())
	assert.False(t, rb.Filled())
	assert.Empty(t, rb.Snapshot())
}
