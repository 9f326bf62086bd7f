package cache

import (
	"path/filepath"
	"time"
)

const lockPollInterval = 50 * time.Millisecond

func dirOf(path string) string { return filepath.Dir(path) }
