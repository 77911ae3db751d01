package dispatcher

import (
	"sync/atomic"
	"time"
)

// idleSubject：永远不结束、永远没数据的实时源
type idleSubject struct {
	stops atomic.Int32
}

func (s *idleSubject) Start()                          {}
func (s *idleSubject) Stop()                           { s.stops.Add(1) }
func (s *idleSubject) Join()                           {}
func (s *idleSubject) Eof() bool                       { return false }
func (s *idleSubject) Dispatch() bool                  { return false }
func (s *idleSubject) PeekDateTime() (time.Time, bool) { return time.Time{}, false }
