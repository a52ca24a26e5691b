package report

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-errors/errors"

	"fantach/device/fan"
	"fantach/log"
)

// FileSink keeps <dir>/speed_<fan> holding the filtered RPM of each fan, for
// shell scripts and other processes on the board.
type FileSink struct {
	dir string

	mu       sync.Mutex
	failures map[int]int
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &FileSink{dir: dir, failures: make(map[int]int)}, nil
}

func (s *FileSink) Path(fanIndex int) string {
	return filepath.Join(s.dir, "speed_"+strconv.Itoa(fanIndex))
}

func (s *FileSink) OnWindow(r fan.Reading) {
	outStr := []byte(strconv.FormatUint(uint64(r.Filtered), 10) + "\n")
	err := os.WriteFile(s.Path(r.Fan), outStr, 0644)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures[r.Fan]++
		if n := s.failures[r.Fan]; n < 2 || n%100 == 0 { // Don't spam the log
			log.Errorf("writing %s failed (%d times): %v", s.Path(r.Fan), n, err)
		}
		return
	}
	s.failures[r.Fan] = 0
}
