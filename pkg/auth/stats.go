package auth

import "sync/atomic"

// Stats collects server-wide counters. All methods are safe for concurrent
// use.
type Stats struct {
	requests         atomic.Int64
	booksSent        atomic.Int64
	imagesSent       atomic.Int64
	successfulLogins atomic.Int64
	wrongLogins      atomic.Int64
}

func (s *Stats) AddRequest()    { s.requests.Add(1) }
func (s *Stats) AddBookSent()   { s.booksSent.Add(1) }
func (s *Stats) AddImageSent()  { s.imagesSent.Add(1) }
func (s *Stats) AddGoodLogin()  { s.successfulLogins.Add(1) }
func (s *Stats) AddWrongLogin() { s.wrongLogins.Add(1) }

func (s *Stats) Requests() int64         { return s.requests.Load() }
func (s *Stats) BooksSent() int64        { return s.booksSent.Load() }
func (s *Stats) ImagesSent() int64       { return s.imagesSent.Load() }
func (s *Stats) SuccessfulLogins() int64 { return s.successfulLogins.Load() }
func (s *Stats) WrongLogins() int64      { return s.wrongLogins.Load() }
