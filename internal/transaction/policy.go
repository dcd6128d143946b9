package transaction

import (
	"errors"
	"fmt"
	"time"
)

// PayloadLength is the only accepted scan length.
const PayloadLength = 12

// Reserved codes and staleness defaults.
const (
	DefaultTakeCode   = "100000000007"
	DefaultAddCode    = "100000000014"
	DefaultStaleAfter = 600 * time.Second
)

// Discard reasons.
const (
	ReasonTooShort = "too short"
	ReasonTooLong  = "too long"
)

// OutcomeKind classifies the result of a commit.
type OutcomeKind int

const (
	Discarded OutcomeKind = iota
	ModeChanged
	Recorded
)

func (k OutcomeKind) String() string {
	switch k {
	case ModeChanged:
		return "mode_changed"
	case Recorded:
		return "recorded"
	default:
		return "discarded"
	}
}

// Outcome is the result of committing one payload.
type Outcome struct {
	Kind      OutcomeKind
	Direction Direction // set for ModeChanged and Recorded
	Reason    string    // set for Discarded
	Record    *Record   // set for Recorded
}

// Settings configure a Policy.
type Settings struct {
	// StaleAfter is the idle time after which the mode reverts to Default.
	StaleAfter time.Duration

	// Default is the direction used at start and after a stale period.
	Default Direction

	// AddCode and TakeCode are the reserved mode-switch payloads.
	AddCode  string
	TakeCode string
}

// DefaultSettings returns the stock settings: revert to take after ten
// minutes of inactivity.
func DefaultSettings() Settings {
	return Settings{
		StaleAfter: DefaultStaleAfter,
		Default:    Take,
		AddCode:    DefaultAddCode,
		TakeCode:   DefaultTakeCode,
	}
}

// Validate checks that the reserved codes are usable.
func (s Settings) Validate() error {
	var errs []error
	if len(s.AddCode) != PayloadLength {
		errs = append(errs, fmt.Errorf("add code %q must be %d characters", s.AddCode, PayloadLength))
	}
	if len(s.TakeCode) != PayloadLength {
		errs = append(errs, fmt.Errorf("take code %q must be %d characters", s.TakeCode, PayloadLength))
	}
	if s.AddCode == s.TakeCode {
		errs = append(errs, errors.New("add and take codes must differ"))
	}
	if s.StaleAfter <= 0 {
		errs = append(errs, errors.New("stale interval must be positive"))
	}
	return errors.Join(errs...)
}

// State is the mode state carried between scans.
type State struct {
	Adding         bool
	LastTransition time.Time
}

// Direction returns the current direction.
func (s State) Direction() Direction {
	return DirectionOf(s.Adding)
}

// Policy applies the commit rules to finished payloads. It owns the mode
// state and is driven by a single goroutine.
type Policy struct {
	settings Settings
	state    State
}

// NewPolicy returns a policy in the default direction. The zero
// LastTransition makes the first item scan apply the default as well.
func NewPolicy(s Settings) (*Policy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Policy{
		settings: s,
		state:    State{Adding: s.Default.Adding()},
	}, nil
}

// State returns a copy of the current mode state.
func (p *Policy) State() State {
	return p.state
}

// Settings returns the policy settings.
func (p *Policy) Settings() Settings {
	return p.settings
}

// Commit interprets payload scanned at now.
func (p *Policy) Commit(payload string, now time.Time) Outcome {
	if n := len(payload); n != PayloadLength {
		reason := ReasonTooShort
		if n > PayloadLength {
			reason = ReasonTooLong
		}
		return Outcome{Kind: Discarded, Reason: reason}
	}

	switch payload {
	case p.settings.TakeCode:
		p.state = State{Adding: false, LastTransition: now}
		return Outcome{Kind: ModeChanged, Direction: Take}
	case p.settings.AddCode:
		p.state = State{Adding: true, LastTransition: now}
		return Outcome{Kind: ModeChanged, Direction: Add}
	}

	if p.Stale(now) {
		p.state.Adding = p.settings.Default.Adding()
	}
	p.state.LastTransition = now

	dir := p.state.Direction()
	return Outcome{
		Kind:      Recorded,
		Direction: dir,
		Record:    &Record{Time: now, Payload: payload, Direction: dir},
	}
}

// Stale reports whether the mode set at the last transition has expired at now.
func (p *Policy) Stale(now time.Time) bool {
	return now.Sub(p.state.LastTransition) > p.settings.StaleAfter
}
