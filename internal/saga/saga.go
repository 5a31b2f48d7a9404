package saga

import (
	"context"
	"fmt"

	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

// Step pairs a forward action with the compensation that undoes it. A nil
// Compensation is a no-op.
type Step struct {
	Name         string
	Action       func(ctx context.Context) error
	Compensation func(ctx context.Context) error
}

// Saga runs ordered steps and, on the first action failure, compensates the
// already-completed steps in reverse order. Compensation reads live state,
// there is no persistent saga log.
type Saga struct {
	name  string
	log   logrus.FieldLogger
	steps []Step
}

func New(log logrus.FieldLogger, name string) *Saga {
	return &Saga{
		name: name,
		log:  log,
	}
}

func (s *Saga) AddStep(name string, action, compensation func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Action: action, Compensation: compensation})
	return s
}

// Execute runs the steps in order. When a step fails, compensations for the
// completed steps run in reverse, compensation failures are logged and do not
// stop the chain. The returned error wraps both ErrSagaFailed and the step's
// own error, after compensation has finished.
func (s *Saga) Execute(ctx context.Context) error {
	completed := make([]Step, 0, len(s.steps))

	for _, step := range s.steps {
		if err := step.Action(ctx); err != nil {
			s.log.WithError(err).Errorf("saga %s: step %s failed, compensating %d completed steps", s.name, step.Name, len(completed))
			s.compensate(ctx, completed)
			return fmt.Errorf("%w: saga %s step %s: %w", sherrors.ErrSagaFailed, s.name, step.Name, err)
		}
		completed = append(completed, step)
	}

	return nil
}

func (s *Saga) compensate(ctx context.Context, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensation == nil {
			continue
		}
		if err := step.Compensation(ctx); err != nil {
			s.log.WithError(err).Errorf("saga %s: compensation failed for %s", s.name, step.Name)
		}
	}
}
