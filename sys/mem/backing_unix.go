//go:build unix && !tinygo

package mem

import "golang.org/x/sys/unix"

func allocBacking(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeBacking(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}
