package service

import "os"

// Status returns the service definition path and whether it exists.
func Status(label string) (string, bool) {
	path := Path(label)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return path, false
}
