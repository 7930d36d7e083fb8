package bastion

import "errors"

// Error kinds returned by filesystem operations. Match with errors.Is.
var (
	ErrNoSuchEntry       = errors.New("no such file or directory")
	ErrNotADirectory     = errors.New("not a directory")
	ErrIsADirectory      = errors.New("is a directory")
	ErrNotAFile          = errors.New("not a file")
	ErrAlreadyExists     = errors.New("file exists")
	ErrAlreadyOpen       = errors.New("file is already open")
	ErrNotOpenForReading = errors.New("not open for reading")
	ErrNotOpenForWriting = errors.New("not open for writing")
	ErrNotOpen           = errors.New("not open")
	ErrOutOfRange        = errors.New("out of range")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrCannotRemove      = errors.New("cannot remove that directory")
	ErrUnsupported       = errors.New("not supported")
)

// Error records a failed operation along with the path or descriptor it targeted
type Error struct {
	Op     string // i.e. "open", "read"
	Target string // path or descriptor; may be empty
	Err    error
}

// NewError wraps err for op on target
func NewError(op, target string, err error) *Error {
	return &Error{Op: op, Target: target, Err: err}
}

func (e *Error) Error() string {
	if e.Target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
