package util

import (
	"errors"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ReadFileAt reads full contents of a file in given directory
func ReadFileAt(dir *os.File, filename string) ([]byte, error) {
	fd, oerr := unix.Openat(int(dir.Fd()), filename, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if oerr != nil {
		return nil, oerr
	}
	var stat unix.Stat_t
	if serr := unix.Fstat(fd, &stat); serr != nil {
		unix.Close(fd)
		return nil, serr
	}
	buf := make([]byte, stat.Size)
	n, rerr := unix.Read(fd, buf)
	if rerr != nil {
		unix.Close(fd)
		return nil, rerr
	}
	if n != len(buf) {
		buf = buf[:n]
	}
	unix.Close(fd)
	return buf, nil
}

// MkdirAt creates a sub-directory in given directory. An existing directory is not an error.
func MkdirAt(dir *os.File, name string, perm uint32) error {
	err := unix.Mkdirat(int(dir.Fd()), name, perm)
	if errors.Is(err, unix.EEXIST) {
		return nil
	}
	return err
}

// WriteFileAt writes to a new file in given directory
func WriteFileAt(dir *os.File, filename string, data []byte, perm uint32) error {
	_, err := WriteBuffersAt(dir, filename, [][]byte{data}, perm, false)
	return err
}

// WriteBuffersAt writes all the given buffers in order to a new file in given directory, as one logical write
//
// directIO opens the file with O_DIRECT; callers must check alignment by IsDirectIOAligned beforehand.
//
// Returns the total bytes written, which may be less than the sum of buffers on error
func WriteBuffersAt(dir *os.File, filename string, buffers [][]byte, perm uint32, directIO bool) (int, error) {
	flags := unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC | unix.O_CLOEXEC
	if directIO {
		flags |= unix.O_DIRECT
	}
	fd, oerr := unix.Openat(int(dir.Fd()), filename, flags, perm)
	if oerr != nil {
		return 0, oerr
	}
	written, werr := writevFull(fd, buffers)
	if cerr := unix.Close(fd); cerr != nil && werr == nil {
		werr = cerr
	}
	return written, werr
}

// IsDirectIOAligned checks whether all the buffers can be written with O_DIRECT, by address and size
func IsDirectIOAligned(buffers [][]byte, alignment int) bool {
	for _, buf := range buffers {
		if len(buf) == 0 {
			continue
		}
		if len(buf)%alignment != 0 || uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%uintptr(alignment) != 0 {
			return false
		}
	}
	return true
}

func writevFull(fd int, buffers [][]byte) (int, error) {
	pending := make([][]byte, 0, len(buffers))
	for _, buf := range buffers {
		if len(buf) > 0 {
			pending = append(pending, buf)
		}
	}
	total := 0
	for len(pending) > 0 {
		n, err := unix.Writev(fd, pending)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
		total += n
		for n > 0 {
			if n >= len(pending[0]) {
				n -= len(pending[0])
				pending = pending[1:]
			} else {
				pending[0] = pending[0][n:]
				n = 0
			}
		}
	}
	return total, nil
}
