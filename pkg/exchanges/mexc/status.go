package mexc

import (
	"fmt"

	"mexc-gateway/pkg/exchanges/common"
)

var regularStatus = map[int]common.Status{
	1: common.StatusNotTraded, // uninformed
	2: common.StatusNotTraded, // uncompleted
	3: common.StatusAllTraded,
	4: common.StatusCancelled,
	5: common.StatusCancelled, // invalid
}

var planStatus = map[int]common.Status{
	1: common.StatusNotTraded,
	2: common.StatusCancelled,
	3: common.StatusAllTraded,
	4: common.StatusCancelled, // invalid
	5: common.StatusRejected,  // trigger failed
}

var orderTypes = map[int]common.OrderType{
	1: common.OrderTypeLimit,
	5: common.OrderTypeMarket,
}

// Side codes are open long, close short, open short, close long.
// Only the direction survives; the open/close half is not trusted.
var sideDirections = map[int]common.Direction{
	1: common.DirectionLong,
	2: common.DirectionShort,
	3: common.DirectionShort,
	4: common.DirectionLong,
}

var holdSides = map[int]common.Direction{
	1: common.DirectionLong,
	2: common.DirectionShort,
}

var klineIntervals = map[common.Interval]string{
	common.IntervalMinute: "Min1",
	common.IntervalHour:   "Min60",
	common.IntervalDaily:  "Day1",
}

// StatusFor maps a raw state code of the given category.
func StatusFor(category common.Category, code int) (common.Status, error) {
	table := regularStatus
	if category != common.CategoryRegular {
		table = planStatus
	}
	s, ok := table[code]
	if !ok {
		return "", &ReconcileWarning{Channel: string(category), Reason: fmt.Sprintf("unknown state %d", code)}
	}
	return s, nil
}

func directionFor(channel string, side int) (common.Direction, error) {
	d, ok := sideDirections[side]
	if !ok {
		return "", &ReconcileWarning{Channel: channel, Reason: fmt.Sprintf("unknown side %d", side)}
	}
	return d, nil
}

func orderTypeFor(channel string, code int) (common.OrderType, error) {
	t, ok := orderTypes[code]
	if !ok {
		return "", &ReconcileWarning{Channel: channel, Reason: fmt.Sprintf("unknown order type %d", code)}
	}
	return t, nil
}

func holdSideFor(channel string, code int) (common.Direction, error) {
	d, ok := holdSides[code]
	if !ok {
		return "", &ReconcileWarning{Channel: channel, Reason: fmt.Sprintf("unknown position type %d", code)}
	}
	return d, nil
}
