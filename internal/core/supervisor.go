package core

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/pkg/exception"
)

// spawn runs a stage goroutine. A returned error or a panic halts the
// pipeline.
func (e *Exchange) spawn(name string, run func() error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.halt(errors.Wrapf(exception.ErrWorkerPanicked, "%s: %v", name, r))
			}
		}()
		if err := run(); err != nil {
			e.halt(errors.Wrap(err, name))
		}
	}()
}

// halt records the first fault and alerts the ring, which stops every
// stage and unblocks the producer.
func (e *Exchange) halt(err error) {
	e.faultMu.Lock()
	first := e.fault == nil
	if first {
		e.fault = err
	}
	e.faultMu.Unlock()

	e.ring.Alert()
	if !first {
		return
	}
	logs.Errorf("exchange halted, err: %+v", err)
	e.cfg.Metrics.IncFault()
	if e.cfg.OnFault != nil {
		e.cfg.OnFault(err)
	}
}
