package transfer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// download writes a received file to a temporary name and moves it into
// place on Close, but only once the file was received completely.
type download struct {
	f        *os.File
	path     string
	complete bool
	onSaved  func(path string, err error)
}

// safeName reduces a name offered by the remote to a plain file name.
func safeName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", errors.Errorf("unusable file name %q", name)
	}
	return base, nil
}

func createDownload(dir, name string) (*download, error) {
	base, err := safeName(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create download directory")
	}
	f, err := os.CreateTemp(dir, ".shiftterm-*")
	if err != nil {
		return nil, errors.Wrap(err, "create download file")
	}
	return &download{f: f, path: filepath.Join(dir, base)}, nil
}

func (d *download) Write(p []byte) (int, error) {
	return d.f.Write(p)
}

func (d *download) Close() error {
	tmp := d.f.Name()
	err := d.f.Close()
	if !d.complete {
		os.Remove(tmp)
		return err
	}
	if err == nil {
		err = os.Rename(tmp, d.path)
	}
	if err != nil {
		os.Remove(tmp)
		err = errors.Wrapf(err, "save %s", d.path)
	}
	if d.onSaved != nil {
		d.onSaved(d.path, err)
	}
	return err
}
