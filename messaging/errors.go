package messaging

import "fmt"

// ChainSetMisuseError reports a programmer error on a ChainSet's key set.
// AddIndex panics with it for a key already present. RemoveIndex returns it
// when the key does not exist or its chain still has pending work, and
// OnElementDestroyed panics with that returned error.
type ChainSetMisuseError struct {
	Op  string
	Key string
}

func (e *ChainSetMisuseError) Error() string {
	return fmt.Sprintf("chain set misuse: %s on key %s", e.Op, e.Key)
}

// ChainSetMergeMismatchError is raised by MergeStepCollective when a is
// not a subset of b's keys.
type ChainSetMergeMismatchError struct {
	Key string
}

func (e *ChainSetMergeMismatchError) Error() string {
	return fmt.Sprintf("chain set merge mismatch: key %s present in a but missing in b", e.Key)
}
