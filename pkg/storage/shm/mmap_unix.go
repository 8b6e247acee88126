//go:build unix

package shm

import (
	"golang.org/x/sys/unix"
)

// mmapFile maps a file descriptor read-write. MAP_SHARED makes writes visible
// to every process mapping the same file.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// mmapAnon maps zeroed memory that is not backed by a file. It stays shared
// with children forked from this process.
func mmapAnon(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
}

// munmap unmaps the memory region, freeing the virtual memory space.
func munmap(data []byte) error {
	return unix.Munmap(data)
}

func munmapAnon(data []byte) error {
	return unix.Munmap(data)
}
