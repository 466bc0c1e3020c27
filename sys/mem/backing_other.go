//go:build !unix || tinygo

package mem

func allocBacking(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func freeBacking([]byte) error { return nil }
