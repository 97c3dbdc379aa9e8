package faults

import "strings"

// ErrList collects the errors of steps that must all run, such as closing
// several resources.
type ErrList []error

func (el *ErrList) Add(err error) {
	if err == nil {
		return
	}
	*el = append(*el, err)
}

func (el *ErrList) Len() int {
	return len(*el)
}

func (el *ErrList) Err() error {
	if len(*el) == 0 {
		return nil
	}
	return el
}

func (el *ErrList) Unwrap() []error {
	return *el
}

func (el *ErrList) Error() string {
	switch len(*el) {
	case 0:
		return "no errors"
	case 1:
		return (*el)[0].Error()
	}
	messages := make([]string, len(*el))
	for i, err := range *el {
		messages[i] = "\t* " + err.Error()
	}
	return "multiple errors occurred:\n" + strings.Join(messages, "\n")
}
