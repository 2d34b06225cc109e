package framesaver

import (
	"testing"

	"github.com/relex/framesink/base"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayTarget(t *testing.T) {
	target := newArrayTarget(logger.WithField("test", t.Name()), 3, 8)
	require.Nil(t, target.Open())
	defer target.Close()

	assert.Nil(t, target.Save(0, base.NewFrame(0, []byte("abc"), []byte("de"))))
	assert.Nil(t, target.Save(1, base.NewFrame(1, []byte("12345678"))))
	assert.Nil(t, target.Save(2, base.NewFrame(2, []byte("x"))))
	assert.Equal(t, 0, target.Cursor(), "cursor wraps")
	assert.Equal(t, "abcde", string(target.Saved(0)))
	assert.Equal(t, "12345678", string(target.Saved(1)))

	assert.Nil(t, target.Save(3, base.NewFrame(3, []byte("new"))))
	assert.Equal(t, "new", string(target.Saved(0)))
	assert.Equal(t, 1, target.Cursor())

	err := target.Save(4, base.NewFrame(4, []byte("123456789")))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "too large")
	}
	assert.Equal(t, 1, target.Cursor(), "oversized record is skipped")
	assert.Equal(t, "12345678", string(target.Saved(1)))
}

func TestArrayTargetNotOpened(t *testing.T) {
	target := newArrayTarget(logger.WithField("test", t.Name()), 3, 8)
	assert.Error(t, target.Save(0, base.NewFrame(0, []byte("a"))))
	target.Close()
}
