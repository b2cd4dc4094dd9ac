package clock

import "time"

// NowFunc is the time source used across the module. Tests may replace it.
var NowFunc = time.Now

// Now returns the current time from NowFunc.
func Now() time.Time {
	return NowFunc()
}
