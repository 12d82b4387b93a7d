package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// open the serial line to the phone.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer yields no port or an
	// operation is attempted on a Modem that was not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when writing to a closed Modem.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// still running on the same Modem.
	ErrLoopRunning = errors.New("loop already running")

	// ErrNotRunning is returned by SendToPhone before the application has
	// been started on the phone.
	//
	// Until then the serial line carries the boot protocol and HDLC frames
	// would corrupt it.
	ErrNotRunning = errors.New("phone application not running")

	// ErrNoPayload is returned when no application image is configured.
	ErrNoPayload = errors.New("no application payload configured")

	// ErrNoPortName is returned by SerialDialer when PortName is empty.
	ErrNoPortName = errors.New("modem: serial port name is required")

	// ErrNilContext is returned by SerialDialer when called with a nil
	// context.
	ErrNilContext = errors.New("modem: context is nil")

	// ErrAsyncWritePending is returned by WriteAsync while a previous
	// asynchronous write has not been awaited.
	ErrAsyncWritePending = errors.New("asynchronous write already pending")
)
