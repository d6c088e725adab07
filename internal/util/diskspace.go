package util

const bytesPerGB = 1024 * 1024 * 1024

// AvailableGB returns the space an unprivileged process may still write
// under path.
func AvailableGB(path string) (float64, error) {
	n, err := availableBytes(path)
	if err != nil {
		return 0, err
	}
	return float64(n) / bytesPerGB, nil
}

// LowDiskSpace reports the free space under path and whether it is below
// minGB. When the filesystem cannot be queried the check passes and the
// reported space is -1.
func LowDiskSpace(path string, minGB float64) (float64, bool) {
	avail, err := AvailableGB(path)
	if err != nil {
		return -1, false
	}
	return avail, avail < minGB
}
