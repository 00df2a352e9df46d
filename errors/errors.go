package errors

import "fmt"

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrMemberDeparted = fmt.Errorf("member has departed")
	ErrSessionClosed  = fmt.Errorf("session is closed")
)
