package flows

import "fmt"

// Step is a named setup action.
type Step struct {
	Name string
	Run  func() error
}

func NewStep(name string, run func() error) Step {
	return Step{Name: name, Run: run}
}

// Pipeline runs the steps in order and stops at the first failure.
func Pipeline(steps ...Step) error {
	for _, step := range steps {
		if err := step.Run(); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	return nil
}
