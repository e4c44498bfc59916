package environment

import (
	"os"
	"path/filepath"
)

const KeyHostSys = "HOST_SYS"

// HostSys returns the path under the sysfs mount, `/sys` unless overridden by HOST_SYS.
func HostSys(elem ...string) string {
	return GetEnvPath(KeyHostSys, "/sys", elem...)
}

func GetEnvPath(key, fallback string, elem ...string) (v string) {
	v = os.Getenv(key)
	if v == "" {
		v = fallback
	}

	return filepath.Join(append([]string{v}, elem...)...)
}
