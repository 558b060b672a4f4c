// Package phonebook stores the list of BBSes the user dials.
package phonebook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
)

var (
	ErrIndexOutOfRange = errors.New("phonebook index out of range")
	ErrInvalidEntry    = errors.New("invalid phonebook entry")
	ErrNotFound        = errors.New("no such phonebook entry")
)

var protocols = map[string]bool{"telnet": true, "ssh": true, "detect": true}

func init() {
	govalidator.CustomTypeTagMap.Set("bbs_protocol", govalidator.CustomTypeValidator(func(i interface{}, context interface{}) bool {
		name, ok := i.(string)
		if !ok {
			return false
		}
		return protocols[name]
	}))
}

// Entry is one BBS.
type Entry struct {
	Name     string `json:"name" valid:"required,length(1|64)"`
	Host     string `json:"host" valid:"required,host"`
	Port     int    `json:"port" valid:"-"`
	Protocol string `json:"protocol" valid:"optional,bbs_protocol"`
}

// Default is the entry a new phonebook starts with.
var Default = Entry{
	Name:     "Shift-Bits BBS",
	Host:     "bbs.shift-bits.com",
	Port:     2003,
	Protocol: "telnet",
}

// Validate checks the entry. Errors wrap ErrInvalidEntry.
func (e Entry) Validate() error {
	if _, err := govalidator.ValidateStruct(e); err != nil {
		return errors.Wrap(ErrInvalidEntry, err.Error())
	}
	if !govalidator.IsPort(strconv.Itoa(e.Port)) {
		return errors.Wrapf(ErrInvalidEntry, "port %d", e.Port)
	}
	return nil
}

func (e Entry) normalize() Entry {
	e.Name = strings.TrimSpace(e.Name)
	e.Host = strings.TrimSpace(e.Host)
	e.Protocol = strings.ToLower(strings.TrimSpace(e.Protocol))
	if e.Protocol == "" {
		e.Protocol = "telnet"
	}
	if e.Port == 0 {
		if e.Protocol == "ssh" {
			e.Port = 22
		} else {
			e.Port = 23
		}
	}
	return e
}

// DefaultPath is phonebook.json in the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config directory")
	}
	return filepath.Join(dir, "shiftterm", "phonebook.json"), nil
}

// Book is a phonebook backed by a JSON file. Entries are addressed by
// their position in the list.
type Book struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

// Load reads the phonebook at path. A missing file yields a book holding
// only the Default entry; it is written on the first Save.
func Load(path string) (*Book, error) {
	b := &Book{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		b.entries = []Entry{Default}
		return b, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read phonebook")
	}
	if err := json.Unmarshal(data, &b.entries); err != nil {
		return nil, errors.Wrapf(err, "parse phonebook %s", path)
	}
	return b, nil
}

// Save writes the phonebook back to its file.
func (b *Book) Save() error {
	b.mu.Lock()
	data, err := json.MarshalIndent(b.entries, "", "  ")
	b.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "encode phonebook")
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return errors.Wrap(err, "create phonebook directory")
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return errors.Wrap(err, "write phonebook")
	}
	return errors.Wrap(os.Rename(tmp, b.path), "replace phonebook")
}

// Path is the file backing the book.
func (b *Book) Path() string {
	return b.path
}

// List returns a copy of all entries.
func (b *Book) List() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries...)
}

// Len is the number of entries.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Add appends e and returns its index.
func (b *Book) Add(e Entry) (int, error) {
	e = e.normalize()
	if err := e.Validate(); err != nil {
		return -1, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	return len(b.entries) - 1, nil
}

// Update replaces the entry at index.
func (b *Book) Update(index int, e Entry) error {
	e = e.normalize()
	if err := e.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.entries) {
		return ErrIndexOutOfRange
	}
	b.entries[index] = e
	return nil
}

// Delete removes the entry at index; later entries move up.
func (b *Book) Delete(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.entries) {
		return ErrIndexOutOfRange
	}
	b.entries = append(b.entries[:index], b.entries[index+1:]...)
	return nil
}

func (b *Book) Get(index int) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.entries) {
		return Entry{}, ErrIndexOutOfRange
	}
	return b.entries[index], nil
}

// Find returns the first entry whose name matches, ignoring case.
func (b *Book) Find(name string) (int, Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			return i, e, nil
		}
	}
	return -1, Entry{}, errors.Wrap(ErrNotFound, name)
}

// Lookup resolves a command line argument: an index, or else a name.
func (b *Book) Lookup(arg string) (int, Entry, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		e, err := b.Get(i)
		return i, e, err
	}
	return b.Find(arg)
}
