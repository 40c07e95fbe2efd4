package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLabel(t *testing.T) {
	label, err := ExtractLabel("train/7/00123.bin")
	require.NoError(t, err)
	assert.Equal(t, 7, label)

	label, err = ExtractLabel("test/0/00001.bin")
	require.NoError(t, err)
	assert.Equal(t, 0, label)
}

func TestExtractLabelTwoSegments(t *testing.T) {
	// 恰好两段: 倒数第二段就是第一段
	label, err := ExtractLabel("7/00123.bin")
	require.NoError(t, err)
	assert.Equal(t, 7, label)
}

func TestExtractLabelInvalid(t *testing.T) {
	// 不足两段
	_, err := ExtractLabel("00123.bin")
	assert.ErrorIs(t, err, ErrInvalidLabel)

	// 倒数第二段不是整数
	_, err = ExtractLabel("train/abc/00123.bin")
	assert.ErrorIs(t, err, ErrInvalidLabel)

	_, err = ExtractLabel("")
	assert.ErrorIs(t, err, ErrInvalidLabel)
}
