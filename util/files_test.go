package util

import (
	"os"
	"path"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	rootPath := t.TempDir()
	t.Log("TestFiles: " + rootPath)

	root, rerr := os.Open(rootPath)
	require.Nil(t, rerr)
	defer root.Close()

	t.Run("mkdir at", func(t *testing.T) {
		assert.Nil(t, MkdirAt(root, "0000000", 0755))
		assert.Nil(t, MkdirAt(root, "0000000", 0755), "existing")
		stat, err := os.Stat(path.Join(rootPath, "0000000"))
		assert.Nil(t, err)
		assert.True(t, stat.IsDir())
	})

	t.Run("write file at", func(t *testing.T) {
		assert.Nil(t, WriteFileAt(root, "test1", []byte("Hello1"), 0644))
		content, err := ReadFileAt(root, "test1")
		assert.Nil(t, err)
		assert.Equal(t, "Hello1", string(content))
		assert.Nil(t, WriteFileAt(root, "test1", []byte("Hi"), 0644))
		content, _ = ReadFileAt(root, "test1")
		assert.Equal(t, "Hi", string(content), "truncated")
	})

	t.Run("write buffers at", func(t *testing.T) {
		written, err := WriteBuffersAt(root, "0000000/F0000001.raw", [][]byte{[]byte("Hello"), nil, []byte(", world")}, 0644, false)
		assert.Nil(t, err)
		assert.Equal(t, 12, written)
		content, _ := os.ReadFile(path.Join(rootPath, "0000000", "F0000001.raw"))
		assert.Equal(t, "Hello, world", string(content))

		_, err = WriteBuffersAt(root, "no-such-dir/F0000002.raw", [][]byte{[]byte("Hello")}, 0644, false)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("read missing file at", func(t *testing.T) {
		_, err := ReadFileAt(root, "test2")
		assert.NotNil(t, err)
	})
}

func TestIsDirectIOAligned(t *testing.T) {
	buf := make([]byte, 8192+512)
	offset := 512 - int(uintptrOf(buf)%512)
	aligned := buf[offset : offset+4096]

	assert.True(t, IsDirectIOAligned([][]byte{aligned}, 512))
	assert.True(t, IsDirectIOAligned([][]byte{aligned[:2048], aligned[2048:]}, 512))
	assert.True(t, IsDirectIOAligned([][]byte{aligned, nil}, 512))
	assert.False(t, IsDirectIOAligned([][]byte{aligned[:1000]}, 512), "bad length")
	assert.False(t, IsDirectIOAligned([][]byte{aligned[1:1025]}, 512), "bad address")
}

func uintptrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}
