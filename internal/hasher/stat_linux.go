//go:build linux

package hasher

import (
	"io/fs"

	"golang.org/x/sys/unix"

	"github.com/flarebyte/aegis/internal/record"
)

// stat performs the single metadata query for path. With follow set,
// symlinks are dereferenced.
func stat(path string, follow bool) (record.Meta, record.Kind, error) {
	var st unix.Stat_t
	var err error
	if follow {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return record.Meta{}, record.KindError, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	size := int64(st.Size)
	sec, nsec := st.Mtim.Unix()
	mtime := float64(sec) + float64(nsec)/1e9
	perm := int64(st.Mode & 0o7777)
	uid := int64(st.Uid)
	gid := int64(st.Gid)
	meta := record.Meta{
		Size:         &size,
		ModifiedTime: &mtime,
		Permissions:  &perm,
		OwnerID:      &uid,
		GroupID:      &gid,
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return meta, record.KindFile, nil
	case unix.S_IFDIR:
		return meta, record.KindDirectory, nil
	case unix.S_IFLNK:
		return meta, record.KindSymlink, nil
	}
	return meta, record.KindOther, nil
}
