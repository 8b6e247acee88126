//go:build windows

package shm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmapFile on Windows is a two-step process: CreateFileMapping followed by MapViewOfFile.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	hMap, err := windows.CreateFileMapping(
		windows.Handle(fd),
		nil,
		windows.PAGE_READWRITE,
		uint32(int64(size)>>32),
		uint32(int64(size)&0xFFFFFFFF),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateFileMapping failed: %w", err)
	}
	// The view keeps the mapping object alive.
	defer windows.CloseHandle(hMap)

	addr, err := windows.MapViewOfFile(hMap, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, fmt.Errorf("MapViewOfFile failed: %w", err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// mmapAnon falls back to heap memory; in-process workers share it directly.
func mmapAnon(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
}

func munmapAnon(data []byte) error {
	return nil
}
