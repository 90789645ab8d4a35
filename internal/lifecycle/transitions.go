package lifecycle

import "github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"

// next is the forward path of the state machine. failed is reachable from
// every non-terminal state and is handled separately.
var next = map[data.Status]data.Status{
	data.StatusPending:  data.StatusAssigned,
	data.StatusAssigned: data.StatusOnTheWay,
	data.StatusOnTheWay: data.StatusCollected,
}

// CanTransition reports whether a pickup in from may move to to.
func CanTransition(from, to data.Status) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	if to == data.StatusFailed {
		return true
	}
	return next[from] == to
}

// checkTransition returns an ErrInvalidTransition naming the violated rule.
func checkTransition(from, to data.Status) error {
	if !to.Valid() {
		return fail(ErrInvalidInput, "unknown status %q", to)
	}
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return fail(ErrInvalidTransition, "pickup is already %s", from)
	}
	if to == data.StatusPending {
		return fail(ErrInvalidTransition, "a pickup cannot return to pending")
	}
	return fail(ErrInvalidTransition, "pickup cannot move from %s to %s; next status is %s", from, to, next[from])
}

// pointsByWaste is the eco point award per waste type.
var pointsByWaste = map[data.WasteType]int{
	data.WasteDry:        10,
	data.WasteWet:        5,
	data.WasteElectronic: 25,
	data.WasteMedical:    20,
	data.WasteRecyclable: 15,
}

const defaultPoints = 10

// PointsFor returns the eco points awarded when a pickup of type w is collected.
func PointsFor(w data.WasteType) int {
	if p, ok := pointsByWaste[w]; ok {
		return p
	}
	return defaultPoints
}
