package deployment

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind is the packaging type of an artifact.
type Kind int

const (
	// KindInfer asks the resolver to derive the kind from the declaring
	// function's parameter type.
	KindInfer Kind = iota
	KindWeb
	KindJava
	KindEnterprise
	KindAdapter
)

// String makes Kind satisfy the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindInfer:
		return "infer"
	case KindWeb:
		return "web"
	case KindJava:
		return "java"
	case KindEnterprise:
		return "enterprise"
	case KindAdapter:
		return "adapter"
	default:
		return "unknown"
	}
}

// Extension returns the file extension of the kind, including the dot.
func (k Kind) Extension() string {
	switch k {
	case KindWeb:
		return ".war"
	case KindJava:
		return ".jar"
	case KindEnterprise:
		return ".ear"
	case KindAdapter:
		return ".rar"
	default:
		return ""
	}
}

// Simple reports whether the kind is a simple package (web or java).
func (k Kind) Simple() bool {
	return k == KindWeb || k == KindJava
}

// KindOf derives the kind from a file name's extension.
func KindOf(name string) Kind {
	switch strings.ToLower(path.Ext(name)) {
	case ".war":
		return KindWeb
	case ".jar":
		return KindJava
	case ".ear":
		return KindEnterprise
	case ".rar":
		return KindAdapter
	default:
		return KindInfer
	}
}

// Deployable is anything that can be packaged and pushed to the server.
type Deployable interface {
	Name() string
	Kind() Kind
	Export(w io.Writer) error
}

// Entry is one file inside an archive.
type Entry struct {
	Path string
	Data []byte
}

// Archive is an in-memory archive exported as a zip.
type Archive struct {
	name    string
	kind    Kind
	entries []Entry
	index   map[string]int
}

// NewArchive creates an empty archive. The kind's extension is appended to
// name when missing.
func NewArchive(name string, kind Kind) *Archive {
	if ext := kind.Extension(); ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return &Archive{
		name:  name,
		kind:  kind,
		index: make(map[string]int),
	}
}

// Name returns the archive file name, e.g. orders.war.
func (a *Archive) Name() string { return a.name }

// Kind returns the archive kind.
func (a *Archive) Kind() Kind { return a.kind }

// AddFile adds or replaces the entry at p.
func (a *Archive) AddFile(p string, data []byte) *Archive {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if i, ok := a.index[p]; ok {
		a.entries[i].Data = data
		return a
	}
	a.index[p] = len(a.entries)
	a.entries = append(a.entries, Entry{Path: p, Data: data})
	return a
}

// AddString adds a text entry.
func (a *Archive) AddString(p, content string) *Archive {
	return a.AddFile(p, []byte(content))
}

// AddDeployable exports d and stores it at dir/d.Name().
func (a *Archive) AddDeployable(dir string, d Deployable) error {
	var buf bytes.Buffer
	if err := d.Export(&buf); err != nil {
		return fmt.Errorf("failed to export nested archive %s: %w", d.Name(), err)
	}
	a.AddFile(path.Join(dir, d.Name()), buf.Bytes())
	return nil
}

// Contains reports whether an entry exists at p.
func (a *Archive) Contains(p string) bool {
	_, ok := a.index[strings.TrimPrefix(path.Clean("/"+p), "/")]
	return ok
}

// Entries returns the entries in insertion order.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Export writes the archive as a zip to w.
func (a *Archive) Export(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, e := range a.entries {
		f, err := zw.Create(e.Path)
		if err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", e.Path, a.name, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			return fmt.Errorf("failed to write %s to %s: %w", e.Path, a.name, err)
		}
	}
	return zw.Close()
}

// Bytes exports d into memory.
func Bytes(d Deployable) (*bytes.Reader, error) {
	var buf bytes.Buffer
	if err := d.Export(&buf); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// DirectoryArchiveName names the archive of dir after the directory itself.
// Without a known extension the archive is a web archive.
func DirectoryArchiveName(dir string) string {
	name := filepath.Base(filepath.Clean(dir))
	if KindOf(name) == KindInfer {
		name += KindWeb.Extension()
	}
	return name
}

// FromDirectory packages the regular files below dir. The kind is taken
// from name's extension, defaulting to a web archive.
func FromDirectory(dir, name string) (*Archive, error) {
	kind := KindOf(name)
	if kind == KindInfer {
		kind = KindWeb
	}
	a := NewArchive(name, kind)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		a.AddFile(filepath.ToSlash(rel), data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", dir, err)
	}
	return a, nil
}

// WebArchive is a .war.
type WebArchive struct{ *Archive }

// NewWebArchive creates an empty web archive.
func NewWebArchive(name string) *WebArchive { return &WebArchive{NewArchive(name, KindWeb)} }

// AddFile adds or replaces the entry at p.
func (w *WebArchive) AddFile(p string, data []byte) *WebArchive {
	w.Archive.AddFile(p, data)
	return w
}

// AddString adds a text entry.
func (w *WebArchive) AddString(p, content string) *WebArchive {
	w.Archive.AddString(p, content)
	return w
}

// AddWebInf adds a file below WEB-INF/.
func (w *WebArchive) AddWebInf(p string, data []byte) *WebArchive {
	w.AddFile(path.Join("WEB-INF", p), data)
	return w
}

// JavaArchive is a .jar.
type JavaArchive struct{ *Archive }

// NewJavaArchive creates an empty java archive.
func NewJavaArchive(name string) *JavaArchive { return &JavaArchive{NewArchive(name, KindJava)} }

func (j *JavaArchive) AddFile(p string, data []byte) *JavaArchive {
	j.Archive.AddFile(p, data)
	return j
}

func (j *JavaArchive) AddString(p, content string) *JavaArchive {
	j.Archive.AddString(p, content)
	return j
}

// AddMetaInf adds a file below META-INF/.
func (j *JavaArchive) AddMetaInf(p string, data []byte) *JavaArchive {
	j.AddFile(path.Join("META-INF", p), data)
	return j
}

// EnterpriseArchive is an .ear.
type EnterpriseArchive struct{ *Archive }

// NewEnterpriseArchive creates an empty enterprise archive.
func NewEnterpriseArchive(name string) *EnterpriseArchive {
	return &EnterpriseArchive{NewArchive(name, KindEnterprise)}
}

func (e *EnterpriseArchive) AddFile(p string, data []byte) *EnterpriseArchive {
	e.Archive.AddFile(p, data)
	return e
}

func (e *EnterpriseArchive) AddString(p, content string) *EnterpriseArchive {
	e.Archive.AddString(p, content)
	return e
}

// AddModule packages d at the root of the enterprise archive.
func (e *EnterpriseArchive) AddModule(d Deployable) error {
	return e.AddDeployable("", d)
}

// AddLibrary packages d below lib/.
func (e *EnterpriseArchive) AddLibrary(d Deployable) error {
	return e.AddDeployable("lib", d)
}

// AdapterArchive is a resource adapter .rar.
type AdapterArchive struct{ *Archive }

// NewAdapterArchive creates an empty resource adapter archive.
func NewAdapterArchive(name string) *AdapterArchive {
	return &AdapterArchive{NewArchive(name, KindAdapter)}
}

func (r *AdapterArchive) AddFile(p string, data []byte) *AdapterArchive {
	r.Archive.AddFile(p, data)
	return r
}

func (r *AdapterArchive) AddString(p, content string) *AdapterArchive {
	r.Archive.AddString(p, content)
	return r
}

// SetDescriptor sets META-INF/ra.xml.
func (r *AdapterArchive) SetDescriptor(data []byte) *AdapterArchive {
	r.AddFile("META-INF/ra.xml", data)
	return r
}
