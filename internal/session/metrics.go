package session

import "time"

// Metrics receives session counters. *observability.EngineCollector
// implements it; a nil Metrics discards everything.
type Metrics interface {
	IncPlacement()
	IncRemoval()
	IncRecenter()
	IncRollback(op string)
	IncFeedEvent(outcome string)
	ObserveStoreOp(op string, d time.Duration, err error)
	SetIndexSize(total, visible int)
	SetOriginDrift(meters float64)
}

type nopMetrics struct{}

func (nopMetrics) IncPlacement()                               {}
func (nopMetrics) IncRemoval()                                 {}
func (nopMetrics) IncRecenter()                                {}
func (nopMetrics) IncRollback(string)                          {}
func (nopMetrics) IncFeedEvent(string)                         {}
func (nopMetrics) ObserveStoreOp(string, time.Duration, error) {}
func (nopMetrics) SetIndexSize(int, int)                       {}
func (nopMetrics) SetOriginDrift(float64)                      {}
