//go:build !linux

package hasher

import (
	"io/fs"
	"os"

	"github.com/flarebyte/aegis/internal/record"
)

// stat falls back to os.Stat/os.Lstat outside linux; ownership is left empty.
func stat(path string, follow bool) (record.Meta, record.Kind, error) {
	var fi fs.FileInfo
	var err error
	if follow {
		fi, err = os.Stat(path)
	} else {
		fi, err = os.Lstat(path)
	}
	if err != nil {
		return record.Meta{}, record.KindError, err
	}
	size := fi.Size()
	mt := fi.ModTime()
	mtime := float64(mt.Unix()) + float64(mt.Nanosecond())/1e9
	perm := int64(fi.Mode().Perm())
	meta := record.Meta{
		Size:         &size,
		ModifiedTime: &mtime,
		Permissions:  &perm,
	}
	switch {
	case fi.Mode().IsRegular():
		return meta, record.KindFile, nil
	case fi.IsDir():
		return meta, record.KindDirectory, nil
	case fi.Mode()&fs.ModeSymlink != 0:
		return meta, record.KindSymlink, nil
	}
	return meta, record.KindOther, nil
}
