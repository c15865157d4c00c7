package factory

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const (
	descriptorExt   = ".desktop"
	descriptorGroup = "Xfce Panel"
)

// SearchDir pairs a directory of plugin descriptions with the directory
// holding the modules they name.
type SearchDir struct {
	Data string `json:"data"`
	Lib  string `json:"lib"`
}

// Descriptor describes one installable plugin type. It is not modified
// once loaded; a rescan replaces it.
type Descriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Comment     string `json:"comment,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Module      string `json:"module"`
	Filename    string `json:"filename"`
	Source      string `json:"source"`
	Internal    bool   `json:"internal"`
	Unique      bool   `json:"unique"`

	// builtin modules are resolved from the in-process registry.
	builtin bool
}

// Valid reports whether the files backing d still exist.
func (d *Descriptor) Valid() bool {
	if _, err := os.Stat(d.Source); err != nil {
		return false
	}
	if d.builtin {
		return true
	}
	_, err := os.Stat(d.Filename)
	return err == nil
}

// ModulePath returns where the module called module lives in libDir.
func ModulePath(libDir, module string) string {
	return filepath.Join(libDir, "lib"+module+".so")
}

// ModuleName is the inverse of ModulePath.
func ModuleName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), ".so")
	return strings.TrimPrefix(base, "lib")
}

// LoadDescriptors scans dirs in order for plugin descriptions. The plugin
// name is the file name without extension; earlier dirs shadow later ones.
// Files that cannot be used are skipped and reported in the returned errors.
func LoadDescriptors(dirs []SearchDir, builtin func(module string) bool) ([]*Descriptor, []error) {
	var (
		out  []*Descriptor
		errs []error
		seen = make(map[string]bool)
	)
	for _, dir := range dirs {
		files, err := ioutil.ReadDir(dir.Data)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, errors.Wrapf(err, "failed to read plugin dir %s", dir.Data))
			}
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != descriptorExt {
				continue
			}
			name := strings.TrimSuffix(f.Name(), descriptorExt)
			if seen[name] {
				continue
			}
			d, err := ParseDescriptor(filepath.Join(dir.Data, f.Name()), name, dir.Lib, builtin)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			seen[name] = true
			out = append(out, d)
		}
	}
	return out, errs
}

// ParseDescriptor reads a single plugin description file.
func ParseDescriptor(path, name, libDir string, builtin func(module string) bool) (*Descriptor, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %s: unable to read %s", name, path)
	}
	sec, err := f.GetSection(descriptorGroup)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %s has no %q group", name, path, descriptorGroup)
	}

	d := &Descriptor{
		Name:        name,
		DisplayName: sec.Key("Name").MustString(name),
		Comment:     sec.Key("Comment").String(),
		Icon:        sec.Key("Icon").String(),
		Module:      sec.Key("X-XFCE-Module").String(),
		Source:      path,
		Internal:    sec.Key("X-XFCE-Internal").MustBool(false),
		Unique:      sec.Key("X-XFCE-Unique").MustBool(false),
	}

	if d.Module == "" {
		if sec.HasKey("X-XFCE-Exec") {
			return nil, fmt.Errorf("plugin %s: %s uses the unsupported X-XFCE-Exec key", name, path)
		}
		return nil, fmt.Errorf("plugin %s: %s names no X-XFCE-Module", name, path)
	}

	d.Filename = ModulePath(libDir, d.Module)
	if _, err := os.Stat(d.Filename); err != nil {
		if builtin == nil || !builtin(d.Module) {
			return nil, fmt.Errorf("plugin %s: there was no module found at %s", name, d.Filename)
		}
		d.builtin = true
	}
	return d, nil
}
