//go:build !unix

package saltstore

import "sync"

var replaceMu sync.Mutex

// lockPath serialises replacement within the process only; cross-process
// locking is provided on unix targets.
func lockPath(string) (func(), error) {
	replaceMu.Lock()
	return replaceMu.Unlock, nil
}
