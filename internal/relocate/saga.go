package relocate

import (
	"fmt"
	"log"
)

// step is one fallible action of a relocation and the action that undoes it
type step struct {
	name       string
	run        func() error
	compensate func()
}

// runSaga executes steps in order. When a step fails, or panics, the
// compensations of the steps that already completed run in reverse order and
// the failing step's error is returned.
func runSaga(steps []step) error {
	done := make([]step, 0, len(steps))
	for _, s := range steps {
		if err := runStep(s); err != nil {
			log.Printf("[Relocate] Step %q failed, rolling back %d step(s): %v", s.name, len(done), err)
			for i := len(done) - 1; i >= 0; i-- {
				compensate(done[i])
			}
			return fmt.Errorf("%s: %w", s.name, err)
		}
		done = append(done, s)
	}
	return nil
}

func runStep(s step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.run()
}

func compensate(s step) {
	if s.compensate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Relocate] Warning: undo %q panicked: %v", s.name, r)
		}
	}()
	s.compensate()
}
