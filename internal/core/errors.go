package core

import "errors"

// ErrBusy is returned when a state-changing session operation is requested
// while another one is still in flight. The caller can retry once the
// in-flight operation settles.
var ErrBusy = errors.New("session operation already in flight")
