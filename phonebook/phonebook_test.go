package phonebook

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func TestLoadMissingSeedsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phonebook.json")
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.List(); !reflect.DeepEqual(got, []Entry{Default}) {
		t.Fatalf("entries = %+v", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Load created the file: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "phonebook.json")
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	i, err := b.Add(Entry{Name: "Local Board", Host: "127.0.0.1", Protocol: "SSH"})
	if err != nil {
		t.Fatal(err)
	}
	if i != 1 {
		t.Errorf("index = %d", i)
	}
	if err := b.Save(); err != nil {
		t.Fatal(err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{Default, {Name: "Local Board", Host: "127.0.0.1", Port: 22, Protocol: "ssh"}}
	if got := again.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded %+v, want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		ok   bool
	}{
		{"default", Default, true},
		{"ip", Entry{Name: "a", Host: "10.0.0.1", Port: 23, Protocol: "telnet"}, true},
		{"no name", Entry{Host: "bbs.example.com", Port: 23}, false},
		{"no host", Entry{Name: "a", Port: 23}, false},
		{"bad host", Entry{Name: "a", Host: "not a host!", Port: 23}, false},
		{"bad port", Entry{Name: "a", Host: "bbs.example.com", Port: 70000}, false},
		{"zero port", Entry{Name: "a", Host: "bbs.example.com"}, false},
		{"bad protocol", Entry{Name: "a", Host: "bbs.example.com", Port: 23, Protocol: "gopher"}, false},
	}
	for _, tt := range tests {
		err := tt.e.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%s: Validate = %v", tt.name, err)
		}
		if err != nil && errors.Cause(err) != ErrInvalidEntry {
			t.Errorf("%s: error %v does not wrap ErrInvalidEntry", tt.name, err)
		}
	}
}

func TestIndexOperations(t *testing.T) {
	b, _ := Load(filepath.Join(t.TempDir(), "pb.json"))
	b.Add(Entry{Name: "Second", Host: "second.example.com"})
	b.Add(Entry{Name: "Third", Host: "third.example.com", Port: 2323})

	if err := b.Update(1, Entry{Name: "Second BBS", Host: "second.example.com", Port: 2000}); err != nil {
		t.Fatal(err)
	}
	if e, _ := b.Get(1); e.Name != "Second BBS" || e.Port != 2000 {
		t.Errorf("after update %+v", e)
	}
	if err := b.Delete(0); err != nil {
		t.Fatal(err)
	}
	if i, e, err := b.Find("third"); err != nil || i != 1 || e.Port != 2323 {
		t.Errorf("Find = %d, %+v, %v", i, e, err)
	}
	if i, e, err := b.Lookup("0"); err != nil || i != 0 || e.Name != "Second BBS" {
		t.Errorf("Lookup(0) = %d, %+v, %v", i, e, err)
	}

	for _, i := range []int{-1, 2, 99} {
		if _, err := b.Get(i); err != ErrIndexOutOfRange {
			t.Errorf("Get(%d) = %v", i, err)
		}
		if err := b.Delete(i); err != ErrIndexOutOfRange {
			t.Errorf("Delete(%d) = %v", i, err)
		}
	}
	if _, _, err := b.Lookup("Nowhere"); errors.Cause(err) != ErrNotFound {
		t.Errorf("Lookup(Nowhere) = %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("len = %d", b.Len())
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pb.json")
	os.WriteFile(path, []byte("{not json"), 0600)
	if _, err := Load(path); err == nil {
		t.Fatal("corrupt phonebook loaded")
	}
}
