package lastseen

import (
	"strings"
)

// ErrorCondition is a soft anomaly in an acknowledgment update. None of them are fatal here.
type ErrorCondition uint8

const (
	OutOfOrder ErrorCondition = iota
	DuplicatedProfiles
	UnknownMessages
	RemovedMessages
)

var conditionNames = [...]string{
	OutOfOrder:         "out_of_order",
	DuplicatedProfiles: "duplicated_profiles",
	UnknownMessages:    "unknown_messages",
	RemovedMessages:    "removed_messages",
}

func (c ErrorCondition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return "unknown_condition"
}

// AllConditions lists every condition in a stable order.
var AllConditions = []ErrorCondition{OutOfOrder, DuplicatedProfiles, UnknownMessages, RemovedMessages}

type ErrorSet uint8

func (s ErrorSet) Has(c ErrorCondition) bool {
	return s&(1<<c) != 0
}

func (s *ErrorSet) add(c ErrorCondition) {
	*s |= 1 << c
}

func (s ErrorSet) Empty() bool {
	return s == 0
}

func (s ErrorSet) Conditions() []ErrorCondition {
	var out []ErrorCondition
	for _, c := range AllConditions {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s ErrorSet) String() string {
	conds := s.Conditions()
	names := make([]string, 0, len(conds))
	for _, c := range conds {
		names = append(names, c.String())
	}
	return "[" + strings.Join(names, ",") + "]"
}
