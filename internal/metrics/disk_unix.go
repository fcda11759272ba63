//go:build linux || darwin

package metrics

import "golang.org/x/sys/unix"

func diskSpace(dir string) (total, available uint64) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, 0
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize
}
