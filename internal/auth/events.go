package auth

// Mode says whether an identity is registering or verifying.
type Mode int

const (
	ModeNew Mode = iota + 1
	ModeExisting
)

func (m Mode) String() string {
	switch m {
	case ModeNew:
		return "new"
	case ModeExisting:
		return "existing"
	}
	return "unknown"
}

// Command is an input to Session.Dispatch.
type Command interface{ isCommand() }

// SubmitIdentity claims a username for the session.
type SubmitIdentity struct{ Username string }

// ReadyForCapture asks the session to record the next gesture.
type ReadyForCapture struct{}

func (SubmitIdentity) isCommand()  {}
func (ReadyForCapture) isCommand() {}

// Event is an output of a Session, delivered through its Emitter.
type Event interface{ isEvent() }

// Emitter receives events synchronously, in order, while the session lock
// is held. It must not call back into the session.
type Emitter func(Event)

type IdentityResolved struct {
	Username string
	Mode     Mode
}

// CaptureStarted is sent before the sensor window opens. Index is 1-based.
type CaptureStarted struct {
	Mode  Mode
	Index int
	Total int
}

// SampleRecorded acknowledges one registration sample.
type SampleRecorded struct {
	Index int
	Total int
}

// AttemptOutcome reports one verification attempt. PassedCount and
// TotalCount are running totals for the session; MaxAttempts is K.
type AttemptOutcome struct {
	AttemptIndex int
	Passed       bool
	PassedCount  int
	TotalCount   int
	MaxAttempts  int
	// TemplatePasses is how many templates this attempt matched.
	TemplatePasses int
	Flat           bool
}

type Accepted struct {
	Username   string
	FirstLogin bool
}

type Rejected struct {
	Username    string
	Reason      RejectReason
	PassedCount int
}

// Error reports a failed command. Retryable errors leave the session ready
// for the same command again.
type Error struct {
	Kind      ErrorKind
	Detail    string
	Retryable bool
}

func (IdentityResolved) isEvent() {}
func (CaptureStarted) isEvent()   {}
func (SampleRecorded) isEvent()   {}
func (AttemptOutcome) isEvent()   {}
func (Accepted) isEvent()         {}
func (Rejected) isEvent()         {}
func (Error) isEvent()            {}
