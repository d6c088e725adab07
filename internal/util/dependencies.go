package util

import (
	"fmt"
	"os/exec"
)

// CheckDependencies reports whether the encoder and prober binaries are on
// PATH. It returns false if any required binary is missing.
func CheckDependencies(ffmpegPath, ffprobePath string) bool {
	deps := []struct {
		name     string
		required bool
	}{
		{ffmpegPath, true},
		{ffprobePath, true},
	}

	ok := true
	for _, dep := range deps {
		path, err := exec.LookPath(dep.name)
		if err != nil {
			if dep.required {
				fmt.Printf("✗ %s not found (REQUIRED)\n", dep.name)
				ok = false
			} else {
				fmt.Printf("- %s not found (optional)\n", dep.name)
			}
			continue
		}
		fmt.Printf("✓ %s found: %s\n", dep.name, path)
	}
	return ok
}
