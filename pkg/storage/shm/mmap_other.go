//go:build !unix && !windows

package shm

import "errors"

func mmapFile(fd uintptr, size int) ([]byte, error) {
	return nil, errors.New("file-backed shared buffers are not supported on this platform")
}

func mmapAnon(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func munmap(data []byte) error {
	return nil
}

func munmapAnon(data []byte) error {
	return nil
}
