package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

var ErrLocked = errors.New("another run is in progress")

// Lock is a pid file, a lock whose owner process no longer exists is considered stale
// and taken over.
type Lock struct {
	path string
}

// Acquire takes the lock at `path` for the current process.
func Acquire(path string) (Lock, error) {
	err := os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return Lock{}, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
			closeErr := f.Close()
			if err != nil {
				return Lock{}, err
			}
			if closeErr != nil {
				return Lock{}, closeErr
			}
			return Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return Lock{}, err
		}

		pid, err := readPid(path)
		if err == nil {
			alive, err := process.PidExists(int32(pid))
			if err != nil {
				return Lock{}, err
			}
			if alive {
				return Lock{}, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
		}
		err = os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return Lock{}, err
		}
	}
	return Lock{}, ErrLocked
}

func readPid(path string) (int, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(contents)))
}

func (l Lock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
