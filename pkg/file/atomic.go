/*
Copyright 2018 Edward Robinson.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package file

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dchest/safefile"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultMode is used for new files when no mode is given.
const DefaultMode os.FileMode = 0644

// Meta describes how an installed file is owned.
type Meta struct {
	// Mode zero keeps the mode of the file being replaced.
	Mode  os.FileMode
	Owner string
	Group string
	// Backup keeps the replaced content next to the file with a .bak suffix.
	Backup bool
}

type Atomic struct {
	Log *zap.Logger
}

// Sync atomicly writes data to a file at the given path
//
// If the parent directory does not exist it is created.
// If the file already has the given content only its mode and ownership
// are corrected. Sync reports whether anything on disk changed.
func (a Atomic) Sync(data io.Reader, path string, meta Meta) (bool, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return false, errors.Wrapf(err, "unable to read content for %s", path)
	}
	uid, gid, err := ids(meta.Owner, meta.Group)
	if err != nil {
		return false, err
	}

	old, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "unable to read %s", path)
	}
	var info os.FileInfo
	if exists {
		if info, err = os.Stat(path); err != nil {
			return false, errors.Wrapf(err, "unable to stat %s", path)
		}
	}
	mode := meta.Mode.Perm()
	if mode == 0 && exists {
		mode = info.Mode().Perm()
	}
	if mode == 0 {
		mode = DefaultMode
	}

	if exists && bytes.Equal(old, content) {
		return fixMeta(path, info, mode, uid, gid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, errors.Wrapf(err, "unable to create directory for %s", path)
	}
	f, err := safefile.Create(path, mode)
	if err != nil {
		return false, errors.Wrapf(err, "unable to create %s", path)
	}
	defer f.Close()
	if _, err = f.Write(content); err != nil {
		return false, errors.Wrapf(err, "unable to write %s", path)
	}
	if err = f.Chmod(mode); err != nil {
		return false, errors.Wrapf(err, "unable to chmod %s", path)
	}
	if uid >= 0 || gid >= 0 {
		if err = f.Chown(uid, gid); err != nil {
			return false, errors.Wrapf(err, "unable to chown %s", path)
		}
	}
	if exists && meta.Backup {
		if err := safefile.WriteFile(path+".bak", old, info.Mode().Perm()); err != nil {
			return false, errors.Wrapf(err, "unable to back up %s", path)
		}
	}
	a.logDiff(path, f.Name(), mode)
	if err := f.Commit(); err != nil {
		return false, errors.Wrapf(err, "unable to replace %s", path)
	}
	return true, nil
}

func (a Atomic) logDiff(path, replacement string, mode os.FileMode) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("file will be updated", zap.String("path", path))
	// Files that are not world readable may carry credentials.
	if mode&0004 != 0 {
		log.Debug("file diff", zap.String("path", path), zap.ByteString("diff", diff(path, replacement)))
	}
}

func diff(path, new string) []byte {
	old := path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		old = "/dev/null"
	}
	output, err := exec.Command("diff", "-u", old, new).Output()
	if exiterr, ok := err.(*exec.ExitError); ok {
		if status, ok := exiterr.Sys().(syscall.WaitStatus); ok && status.ExitStatus() == 1 {
			return output
		}
	}
	return nil
}

func fixMeta(path string, info os.FileInfo, mode os.FileMode, uid, gid int) (bool, error) {
	changed := false
	if info.Mode().Perm() != mode {
		if err := os.Chmod(path, mode); err != nil {
			return false, errors.Wrapf(err, "unable to chmod %s", path)
		}
		changed = true
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if (uid >= 0 && uint32(uid) != stat.Uid) || (gid >= 0 && uint32(gid) != stat.Gid) {
			if err := os.Chown(path, uid, gid); err != nil {
				return false, errors.Wrapf(err, "unable to chown %s", path)
			}
			changed = true
		}
	}
	return changed, nil
}

// ids resolves owner and group names, -1 leaves the id unchanged.
func ids(owner, group string) (int, int, error) {
	uid, gid := -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return uid, gid, errors.Wrapf(err, "unknown owner %s", owner)
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return uid, gid, errors.Wrapf(err, "owner %s has a non numeric uid", owner)
		}
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return uid, gid, errors.Wrapf(err, "unknown group %s", group)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return uid, gid, errors.Wrapf(err, "group %s has a non numeric gid", group)
		}
	}
	return uid, gid, nil
}
