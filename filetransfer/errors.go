package transfer

import "github.com/coreloop/raccess/wire"

// ErrorType is the kind of failure the transfer engine can encounter
// while walking the queue. It is distinct from wire.FileErrorCode: a
// FileErrorCode is what the executor reports for one operation, an
// ErrorType is how the engine classifies that failure for the purpose
// of asking the user what to do about it.
type ErrorType int

const (
	ErrorQueue ErrorType = iota
	ErrorCreateDirectory
	ErrorCreateFile
	ErrorOpenFile
	ErrorAlreadyExists
	ErrorWriteFile
	ErrorReadFile
	ErrorOther
)

func (t ErrorType) String() string {
	switch t {
	case ErrorQueue:
		return "QUEUE"
	case ErrorCreateDirectory:
		return "CREATE_DIRECTORY"
	case ErrorCreateFile:
		return "CREATE_FILE"
	case ErrorOpenFile:
		return "OPEN_FILE"
	case ErrorAlreadyExists:
		return "ALREADY_EXISTS"
	case ErrorWriteFile:
		return "WRITE_FILE"
	case ErrorReadFile:
		return "READ_FILE"
	default:
		return "OTHER"
	}
}

// Action is a user (or memoized) decision about how to proceed past an
// Error. It is a bitmask so a Type's availableActions() can express a
// subset with a single value.
type Action uint32

const (
	ActionAsk Action = 0
	ActionAbort Action = 1 << (iota - 1)
	ActionSkip
	ActionSkipAll
	ActionReplace
	ActionReplaceAll
)

// Error describes one failed operation: what kind of step failed, the
// underlying wire.FileErrorCode, and the path involved (empty for
// queue-level failures that have no single path).
type Error struct {
	Type ErrorType
	Code wire.FileErrorCode
	Path string
}

func (e Error) Error() string {
	if e.Path == "" {
		return e.Type.String()
	}
	return e.Type.String() + ": " + e.Path
}

type actionRule struct {
	availableActions Action
	defaultAction    Action
}

// actionsTable mirrors the kActions table in the original client's
// file_transfer.cc: each error type has a fixed set of actions the UI
// is permitted to offer, and defaults to ASK (never auto-resolved)
// unless the caller has memoized a decision via setActionForErrorType.
var actionsTable = map[ErrorType]actionRule{
	ErrorCreateDirectory: {
		availableActions: ActionAbort | ActionSkip | ActionSkipAll,
		defaultAction:     ActionAsk,
	},
	ErrorCreateFile: {
		availableActions: ActionAbort | ActionSkip | ActionSkipAll,
		defaultAction:     ActionAsk,
	},
	ErrorOpenFile: {
		availableActions: ActionAbort | ActionSkip | ActionSkipAll,
		defaultAction:     ActionAsk,
	},
	ErrorAlreadyExists: {
		availableActions: ActionAbort | ActionSkip | ActionSkipAll | ActionReplace | ActionReplaceAll,
		defaultAction:     ActionAsk,
	},
	ErrorWriteFile: {
		availableActions: ActionAbort | ActionSkip | ActionSkipAll,
		defaultAction:     ActionAsk,
	},
	ErrorReadFile: {
		availableActions: ActionAbort | ActionSkip | ActionSkipAll,
		defaultAction:     ActionAsk,
	},
	ErrorOther: {
		availableActions: ActionAbort,
		defaultAction:     ActionAsk,
	},
}

// AvailableActions returns the actions the UI may legally offer for this
// error's type.
func (e Error) AvailableActions() Action {
	return actionsTable[e.Type].availableActions
}

// DefaultAction returns the type's default action, which is always
// ActionAsk except for types not present in the table at all (treated
// as unconditionally fatal).
func (e Error) DefaultAction() Action {
	rule, ok := actionsTable[e.Type]
	if !ok {
		return ActionAbort
	}
	return rule.defaultAction
}
