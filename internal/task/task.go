package task

import (
	"fmt"
	"strings"
	"time"
)

// Priority is an ordered level. Comparisons use the ordinal: Low < Medium < High.
type Priority int

const (
	Low Priority = iota
	Medium
	High
)

var priorityNames = [...]string{"LOW", "MEDIUM", "HIGH"}

func (p Priority) String() string {
	if p < Low || p > High {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

// Valid reports whether p is one of the declared levels.
func (p Priority) Valid() bool { return p >= Low && p <= High }

// ParsePriority matches s case-insensitively against the level names.
func ParsePriority(s string) (Priority, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == v {
			return Priority(i), nil
		}
	}
	return 0, Validation("priority", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Strategy selects the admission policy applied when a process is added.
type Strategy int

const (
	Naive Strategy = iota
	FIFO
	ByPriority
)

var strategyNames = [...]string{"NAIVE", "FIFO", "PRIORITY"}

func (s Strategy) String() string {
	if s < Naive || s > ByPriority {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseStrategy matches s case-insensitively against NAIVE, FIFO and PRIORITY.
func ParseStrategy(s string) (Strategy, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range strategyNames {
		if n == v {
			return Strategy(i), nil
		}
	}
	return 0, Validation("type", s)
}

func (s Strategy) MarshalText() ([]byte, error) {
	if s < Naive || s > ByPriority {
		return nil, fmt.Errorf("invalid strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SortKey names a listing order.
type SortKey int

const (
	SortByDate SortKey = iota
	SortByPriority
	SortByID
)

var sortKeyNames = [...]string{"DATE", "PRIORITY", "ID"}

func (k SortKey) String() string {
	if k < SortByDate || k > SortByID {
		return fmt.Sprintf("SortKey(%d)", int(k))
	}
	return sortKeyNames[k]
}

// ParseSortKey matches s case-insensitively against DATE, PRIORITY and ID.
func ParseSortKey(s string) (SortKey, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range sortKeyNames {
		if n == v {
			return SortKey(i), nil
		}
	}
	return 0, Validation("sortKey", s)
}

// Process is a single bookkeeping record. It is never modified after insertion.
type Process struct {
	PID      int64     `json:"pid"`
	Task     string    `json:"task"`
	Priority Priority  `json:"priority"`
	Created  time.Time `json:"created"`
}

// New builds an unsaved record. The store assigns PID on insert.
// created is normalized to UTC with microsecond precision so every store
// returns the same value it was given.
func New(title string, p Priority, created time.Time) (Process, error) {
	if strings.TrimSpace(title) == "" {
		return Process{}, &Error{Kind: ErrValidation, Msg: "task: must not be blank"}
	}
	if !p.Valid() {
		return Process{}, Validation("priority", p.String())
	}
	return Process{
		Task:     title,
		Priority: p,
		Created:  created.UTC().Truncate(time.Microsecond),
	}, nil
}

// Before reports whether p is older than o. Ties on Created fall back to PID.
func (p Process) Before(o Process) bool {
	if !p.Created.Equal(o.Created) {
		return p.Created.Before(o.Created)
	}
	return p.PID < o.PID
}
