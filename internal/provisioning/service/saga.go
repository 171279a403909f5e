package service

import (
	"context"
	"errors"
	"fmt"
)

// saga records the compensating action of every completed step.
type saga struct {
	steps []undoStep
}

type undoStep struct {
	kind string
	id   string
	undo func(context.Context) error
}

func (s *saga) push(kind, id string, undo func(context.Context) error) {
	s.steps = append(s.steps, undoStep{kind: kind, id: id, undo: undo})
}

// compensate runs every undo in reverse order, continuing past failures. It returns the
// records left behind as "kind:id" and the joined errors.
func (s *saga) compensate(ctx context.Context, onError func(kind, id string, err error)) ([]string, error) {
	var (
		orphans []string
		errs    []error
	)
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if err := st.undo(ctx); err != nil {
			orphans = append(orphans, st.kind+":"+st.id)
			errs = append(errs, fmt.Errorf("delete %s %s: %w", st.kind, st.id, err))
			if onError != nil {
				onError(st.kind, st.id, err)
			}
		}
	}
	return orphans, errors.Join(errs...)
}
