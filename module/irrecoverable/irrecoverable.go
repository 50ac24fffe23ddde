package irrecoverable

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
)

// Signaler sends the error out.
type Signaler struct {
	errChan chan error
}

func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{errChan: errChan}, errChan
}

// Throw is a narrow drop-in replacement for panic, log.Fatal, log.Panic, etc
// anywhere there's something connected to the error channel. Only the first
// error is delivered; the calling goroutine always exits.
func (s *Signaler) Throw(err error) {
	defer runtime.Goexit()
	select {
	case s.errChan <- err:
	default:
	}
}

// SignalerContext is a context.Context that can also carry irrecoverable
// errors back to whoever started the component.
type SignalerContext interface {
	context.Context
	Throw(err error) // delegates to the signaler
	sealed()         // private, to constrain builder to using WithSignaler
}

// private, to force context derivation / WithSignaler
type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc signalerCtx) sealed() {}

// WithSignaler is the One True Way of getting a SignalerContext.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return &signalerCtx{parent, sig}, errChan
}

// Throw can be a drop-in replacement anywhere we have a context.Context likely
// to support irrecoverables. Without a signaler the process is terminated.
func Throw(ctx context.Context, err error) {
	signalerAbleContext, ok := ctx.(SignalerContext)
	if ok {
		signalerAbleContext.Throw(err)
	}
	log.Printf("irrecoverable error signaler not found for context, unhandled irrecoverable error: %v", err)
	os.Exit(1)
}

// NewExceptionf wraps a formatted error into an exception, an error that is
// not expected to be handled by the caller.
func NewExceptionf(msg string, args ...any) error {
	return fmt.Errorf("unexpected exception: "+msg, args...)
}
