package app

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/pbkdf2"

	"firmcore/internal/flashfs"
	"firmcore/sys/syscall"
)

const (
	// Key stretching runs in chunks so progress can be reported and the
	// caller can abort between them.
	pinIterations = 20_000
	pinChunks     = 10
	keySize       = 32
	// chunkWaitSecs is the coarse time estimate reported with progress.
	chunkWaitSecs = 1
)

// pinPath holds the PIN verifier.
const pinPath = "/sys/pin"

// Files is the flash file store. *flashfs.FS satisfies it.
type Files interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Mkdir(path string) error
	ReadDir(path string) ([]flashfs.Info, error)
}

// FlashStorage is the emulator's PIN-protected storage. The PIN verifier
// is a file on flash; it is set by the first unlock. Without files the
// verifier lives in memory only.
type FlashStorage struct {
	mu       sync.Mutex
	files    Files
	salt     []byte
	verifier []byte
	unlocked bool
	log      hclog.Logger
}

func NewFlashStorage(files Files, log hclog.Logger) *FlashStorage {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &FlashStorage{files: files, log: log.Named("storage")}
}

// Init sets the salt and loads a stored verifier if there is one.
func (s *FlashStorage) Init(salt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salt = append([]byte(nil), salt...)
	s.unlocked = false
	s.verifier = nil

	if s.files == nil {
		return nil
	}
	rec, err := s.files.ReadFile(pinPath)
	switch {
	case errors.Is(err, flashfs.ErrNotFound):
		return nil
	case err != nil:
		return err
	case len(rec) != keySize:
		return fmt.Errorf("pin record: %d bytes, want %d", len(rec), keySize)
	}
	s.verifier = rec
	return nil
}

// Unlock stretches pin and compares it with the verifier. progress is
// called after every chunk; returning true aborts.
func (s *FlashStorage) Unlock(pin []byte, progress syscall.ProgressFunc) bool {
	s.mu.Lock()
	salt := s.salt
	s.mu.Unlock()
	if salt == nil {
		s.log.Warn("unlock before init")
		return false
	}

	key := pin
	for i := 0; i < pinChunks; i++ {
		key = pbkdf2.Key(key, salt, pinIterations/pinChunks, keySize, sha256.New)
		if progress != nil && progress(uint32((pinChunks-i-1)*chunkWaitSecs), uint32((i+1)*1000/pinChunks)) {
			s.log.Debug("unlock aborted", "chunk", i)
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verifier == nil {
		s.verifier = key
		s.store(key)
		s.unlocked = true
		s.log.Info("pin set")
		return true
	}
	s.unlocked = subtle.ConstantTimeCompare(key, s.verifier) == 1
	return s.unlocked
}

// store persists the verifier. Storage keeps working from memory when the
// board has no flash.
func (s *FlashStorage) store(key []byte) {
	if s.files == nil {
		return
	}
	if err := s.files.Mkdir(path.Dir(pinPath)); err != nil {
		s.log.Warn("mkdir failed", "error", err)
		return
	}
	if err := s.files.WriteFile(pinPath, key); err != nil {
		s.log.Warn("write failed", "error", err)
	}
}

func (s *FlashStorage) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

var _ syscall.Storage = (*FlashStorage)(nil)
