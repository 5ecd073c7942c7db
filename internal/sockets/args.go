// Package sockets models the per-operation state object of asynchronous
// socket calls. It carries no networking of its own.
package sockets

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrInvalidPolicyProtocol = errors.New("sockets: invalid client access policy protocol")
	ErrBufferRange           = errors.New("sockets: offset or count outside the buffer")
	ErrBufferListSet         = errors.New("sockets: buffer list already set")
	ErrBufferSet             = errors.New("sockets: buffer already set")
)

// Operation identifies the last asynchronous operation.
type Operation int

const (
	OperationNone Operation = iota
	OperationAccept
	OperationConnect
	OperationDisconnect
	OperationReceive
	OperationReceiveFrom
	OperationReceiveMessageFrom
	OperationSend
	OperationSendPackets
	OperationSendTo
)

var operationNames = [...]string{
	"None", "Accept", "Connect", "Disconnect", "Receive",
	"ReceiveFrom", "ReceiveMessageFrom", "Send", "SendPackets", "SendTo",
}

func (o Operation) String() string {
	if o >= 0 && int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// PolicyProtocol selects how the client access policy is fetched.
type PolicyProtocol int

const (
	PolicyTCP PolicyProtocol = iota
	PolicyHTTP
)

func (p PolicyProtocol) String() string {
	switch p {
	case PolicyTCP:
		return "Tcp"
	case PolicyHTTP:
		return "Http"
	}
	return fmt.Sprintf("PolicyProtocol(%d)", int(p))
}

// SocketError is the status code of a completed operation.
type SocketError int

const (
	ErrorSocketError        SocketError = -1
	ErrorSuccess            SocketError = 0
	ErrorOperationAborted   SocketError = 995
	ErrorAccessDenied       SocketError = 10013
	ErrorAddressInUse       SocketError = 10048
	ErrorNetworkUnreachable SocketError = 10051
	ErrorConnectionReset    SocketError = 10054
	ErrorTimedOut           SocketError = 10060
	ErrorConnectionRefused  SocketError = 10061
	ErrorHostNotFound       SocketError = 11001
)

func (e SocketError) Error() string {
	switch e {
	case ErrorSuccess:
		return "success"
	case ErrorSocketError:
		return "socket error"
	case ErrorOperationAborted:
		return "operation aborted"
	case ErrorAccessDenied:
		return "access denied"
	case ErrorAddressInUse:
		return "address in use"
	case ErrorNetworkUnreachable:
		return "network unreachable"
	case ErrorConnectionReset:
		return "connection reset"
	case ErrorTimedOut:
		return "timed out"
	case ErrorConnectionRefused:
		return "connection refused"
	case ErrorHostNotFound:
		return "host not found"
	}
	return fmt.Sprintf("socket error %d", int(e))
}

// SocketAsyncEventArgs carries the inputs and results of one asynchronous
// socket operation. The zero value is ready to use.
type SocketAsyncEventArgs struct {
	buffer     []byte
	bufferList [][]byte
	offset     int
	count      int
	policy     PolicyProtocol

	BytesTransferred   int
	ConnectByNameError error
	ConnectSocket      net.Conn
	LastOperation      Operation
	RemoteEndPoint     net.Addr
	SocketError        SocketError
	UserToken          any

	// Completed is called by Complete.
	Completed func(*SocketAsyncEventArgs)
}

// Buffer returns the data buffer.
func (e *SocketAsyncEventArgs) Buffer() []byte { return e.buffer }

// BufferList returns the scatter/gather buffers.
func (e *SocketAsyncEventArgs) BufferList() [][]byte { return e.bufferList }

// Offset returns the start of the data window in Buffer.
func (e *SocketAsyncEventArgs) Offset() int { return e.offset }

// Count returns the length of the data window in Buffer.
func (e *SocketAsyncEventArgs) Count() int { return e.count }

// SetBuffer sets the buffer and its data window. A nil buffer clears it,
// in which case offset and count must be zero.
func (e *SocketAsyncEventArgs) SetBuffer(buf []byte, offset, count int) error {
	if buf != nil && e.bufferList != nil {
		return ErrBufferListSet
	}
	if offset < 0 || count < 0 || offset > len(buf) || count > len(buf)-offset {
		return fmt.Errorf("%w: offset %d count %d len %d", ErrBufferRange, offset, count, len(buf))
	}
	e.buffer, e.offset, e.count = buf, offset, count
	return nil
}

// SetBufferRange moves the data window within the current buffer.
func (e *SocketAsyncEventArgs) SetBufferRange(offset, count int) error {
	return e.SetBuffer(e.buffer, offset, count)
}

// SetBufferList sets the scatter/gather buffers. It fails while Buffer is set.
func (e *SocketAsyncEventArgs) SetBufferList(list [][]byte) error {
	if list != nil && e.buffer != nil {
		return ErrBufferSet
	}
	e.bufferList = list
	return nil
}

// ClientAccessPolicyProtocol returns the policy protocol; TCP by default.
func (e *SocketAsyncEventArgs) ClientAccessPolicyProtocol() PolicyProtocol { return e.policy }

// SetClientAccessPolicyProtocol accepts PolicyTCP or PolicyHTTP.
func (e *SocketAsyncEventArgs) SetClientAccessPolicyProtocol(p PolicyProtocol) error {
	if p != PolicyTCP && p != PolicyHTTP {
		return fmt.Errorf("%w: %d", ErrInvalidPolicyProtocol, int(p))
	}
	e.policy = p
	return nil
}

// Complete records the outcome of op and fires Completed.
func (e *SocketAsyncEventArgs) Complete(op Operation, transferred int, status SocketError) {
	e.LastOperation = op
	e.BytesTransferred = transferred
	e.SocketError = status
	if e.Completed != nil {
		e.Completed(e)
	}
}
