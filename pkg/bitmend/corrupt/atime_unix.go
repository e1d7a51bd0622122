//go:build linux || darwin || freebsd

package corrupt

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// accessTime reads the last access time from stat(2), falling back to the
// modification time if that fails.
func accessTime(path string, info os.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return info.ModTime()
	}
	return time.Unix(st.Atim.Unix())
}
