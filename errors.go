package apx

import "errors"

var (
	ErrInvalidArgument = errors.New("Error in function arguments")
	ErrBufferBoundary  = errors.New("Access outside of buffer boundary")
	ErrBufferFull      = errors.New("Buffer is full")
	ErrQueueFull       = errors.New("Message queue is full")
	ErrParse           = errors.New("Parse failure")
	ErrPack            = errors.New("Failed to pack data")
	ErrUnpack          = errors.New("Failed to unpack data")
	ErrUnexpectedData  = errors.New("Unexpected data encountered")
	ErrInvalidMsg      = errors.New("Invalid message")
	ErrInvalidState    = errors.New("Operation not allowed in current state")
	ErrNullPtr         = errors.New("Unexpected nil reference")
	ErrLengthMismatch  = errors.New("Length does not match expected value")
	ErrNotFound        = errors.New("Item not found")
	ErrFileTooLarge    = errors.New("File exceeds maximum allowed size")
	ErrMsgTooLarge     = errors.New("Message exceeds maximum allowed size")
	ErrNameTooLong     = errors.New("File name exceeds maximum allowed length")
	ErrTransmitError   = errors.New("Underlying transport rejected the send")
)
