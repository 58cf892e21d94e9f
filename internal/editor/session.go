package editor

import (
	"strconv"

	"gagyebu/internal/core"
)

// Status is the state of the single edit session.
type Status int

const (
	StatusIdle Status = iota
	StatusEditing
	StatusCommitting
	// StatusError behaves like StatusEditing and carries the last failure message.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusEditing:
		return "editing"
	case StatusCommitting:
		return "committing"
	case StatusError:
		return "error"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Key is a keystroke the display layer forwards while a cell is open.
type Key int

const (
	KeyOther Key = iota
	// KeyAccept is Enter.
	KeyAccept
	// KeyAbort is Escape.
	KeyAbort
)

// ParseKey maps DOM key names onto Key.
func ParseKey(s string) Key {
	switch s {
	case "Enter":
		return KeyAccept
	case "Escape", "Esc":
		return KeyAbort
	}
	return KeyOther
}

// Action is what the display asks of the cell it is showing an editor for.
type Action int

const (
	// ActionDraft only stores the value.
	ActionDraft Action = iota
	ActionCommit
	ActionBlur
	// ActionAccept is Enter: a commit on single-line fields only.
	ActionAccept
	ActionCancel
)

// ParseAction maps route segments onto Action.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "draft":
		return ActionDraft, true
	case "commit":
		return ActionCommit, true
	case "blur":
		return ActionBlur, true
	case "accept":
		return ActionAccept, true
	case "cancel":
		return ActionCancel, true
	}
	return 0, false
}

func (a Action) String() string {
	switch a {
	case ActionDraft:
		return "draft"
	case ActionCommit:
		return "commit"
	case ActionBlur:
		return "blur"
	case ActionAccept:
		return "accept"
	case ActionCancel:
		return "cancel"
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Action returns what the key asks of the open cell. Other keys only carry the value.
func (k Key) Action() Action {
	switch k {
	case KeyAccept:
		return ActionAccept
	case KeyAbort:
		return ActionCancel
	}
	return ActionDraft
}

// Session is the single cell currently being edited. The zero value is idle.
type Session struct {
	RecordID int64
	Field    core.FieldKind
	Pending  string
	Status   Status
	// Message is the error text shown next to the cell while Status is StatusError.
	Message string
	Err     error
}

// Open reports whether a draft is being edited, with or without an error.
func (s Session) Open() bool {
	return s.Status == StatusEditing || s.Status == StatusError
}

// Editing reports whether the given cell is the one being edited.
func (s Session) Editing(recordID int64, field core.FieldKind) bool {
	return s.Status != StatusIdle && s.RecordID == recordID && s.Field == field
}
