//go:generate mockgen -source=handle_iface.go -destination=mock/handle_mock.go -package=mock

package core

import "context"

// Signals is a set of handle conditions a watch or wait can observe.
type Signals uint32

const (
	SignalReadable Signals = 1 << iota
	SignalWritable
	SignalPeerClosed
)

type WriteFlags uint32

const WriteFlagNone WriteFlags = 0

type ReadFlags uint32

const ReadFlagNone ReadFlags = 0

// ReadResult is what a single non-blocking read returns.
// Payload and Handles are only set when Result is ResultOK.
type ReadResult struct {
	Result  Result
	Payload []byte
	Handles []Handle
}

// WatchCallback is invoked on the host loop when a watched condition holds.
type WatchCallback func(Result)

// Watcher is the token returned by Handle.Watch.
type Watcher interface {
	Cancel()
}

// Handle is one end of a duplex message pipe provided by the host runtime.
//
// Watches are level-triggered: the host keeps notifying while the watched
// condition holds, one callback at a time, on the host loop.
type Handle interface {
	IsValid() bool
	// Write never blocks. On ResultOK ownership of handles moves to the pipe.
	Write(payload []byte, handles []Handle, flags WriteFlags) Result
	// Read never blocks; ResultShouldWait means nothing is queued right now.
	Read(flags ReadFlags) ReadResult
	Watch(signals Signals, cb WatchCallback) Watcher
	// Wait blocks until one of signals is satisfied, the condition becomes
	// unsatisfiable, or ctx is done.
	Wait(ctx context.Context, signals Signals) Result
	Close() Result
}
