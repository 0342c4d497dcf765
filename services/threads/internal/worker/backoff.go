package worker

import "time"

func backoffDelay(numDelivered uint64) time.Duration {
	// 1st failure -> 500ms, 2nd -> 1s, 3rd -> 2s ... capped at 30s
	attempt := int(numDelivered)
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		attempt = 7
	}
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
