package cluster

import (
	"math"
	"time"
)

// Recency decay bounds: full weight inside one day, none past thirty.
const (
	recencyFloor = 24 * time.Hour
	recencyCeil  = 30 * 24 * time.Hour
)

// Popularity scores an issue's engagement: log-scaled comments and
// reactions plus a recency term that decays linearly from 1.0 (updated
// within a day) to 0.0 (a month or older).
func Popularity(comments, reactions int, updatedAt, now time.Time) float64 {
	engagement := 2*math.Log(1+float64(comments)) + math.Log(1+float64(reactions))
	return engagement + recency(updatedAt, now)
}

func recency(updatedAt, now time.Time) float64 {
	age := now.Sub(updatedAt)
	switch {
	case age <= recencyFloor:
		return 1.0
	case age >= recencyCeil:
		return 0.0
	default:
		return 1.0 - float64(age-recencyFloor)/float64(recencyCeil-recencyFloor)
	}
}
