package gate

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"harness/pkg/logging"
)

// DefaultSlot is the module slot used when none is given.
const DefaultSlot = "main"

// Requirement names a module that must be present, optionally in a minimum
// version.
type Requirement struct {
	Name       string
	Slot       string
	MinVersion string
}

// Result is the outcome of a module check. Reason explains why a disabled
// check failed.
type Result struct {
	Enabled bool
	Reason  string
}

func enabled() Result {
	return Result{Enabled: true}
}

func disabled(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// RequireModule checks that the module is installed under modulesDir and,
// when minVersion is set, that its version is at least minVersion.
func RequireModule(modulesDir, name, slot, minVersion string) Result {
	if slot == "" {
		slot = DefaultSlot
	}
	path, err := findModule(modulesDir, name, slot)
	if err != nil {
		logging.Debug("Gate", "Module %s:%s not found: %v", name, slot, err)
		return disabled("Module %s not found in %s. Disabling test.", name, modulesDir)
	}
	if minVersion == "" {
		return enabled()
	}

	found, err := moduleVersion(path)
	if err != nil {
		logging.Debug("Gate", "No version for %s: %v", path, err)
		return disabled("Could not determine the version of module %s. Disabling test.", name)
	}
	ok, err := AtLeast(found, minVersion)
	if err != nil {
		return disabled("Cannot compare version %s of module %s with %s: %v. Disabling test.", found, name, minVersion, err)
	}
	if !ok {
		return disabled("Found version %s and required a minimum of version %s. Disabling test.", found, minVersion)
	}
	logging.Debug("Gate", "Module %s %s satisfies %s", name, found, minVersion)
	return enabled()
}

// RequireModules checks every requirement and returns the first disabled
// result.
func RequireModules(modulesDir string, reqs ...Requirement) Result {
	for _, r := range reqs {
		if res := RequireModule(modulesDir, r.Name, r.Slot, r.MinVersion); !res.Enabled {
			return res
		}
	}
	return enabled()
}

// moduleRoots lists the directories a module can live in: the modules
// directory itself followed by each layer and add-on.
func moduleRoots(modulesDir string) []string {
	roots := []string{modulesDir}
	for _, pattern := range []string{"system/layers/*", "system/add-ons/*"} {
		matches, _ := filepath.Glob(filepath.Join(modulesDir, filepath.FromSlash(pattern)))
		roots = append(roots, matches...)
	}
	return roots
}

func findModule(modulesDir, name, slot string) (string, error) {
	rel := filepath.Join(append(strings.Split(name, "."), slot, "module.xml")...)
	for _, root := range moduleRoots(modulesDir) {
		p := filepath.Join(root, rel)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

type moduleXML struct {
	Resources struct {
		Entries []resourceEntry `xml:",any"`
	} `xml:"resources"`
}

type resourceEntry struct {
	XMLName xml.Name
	Path    string `xml:"path,attr"`
	Name    string `xml:"name,attr"`
}

var jarVersion = regexp.MustCompile(`-(\d[\w.\-]*)\.jar$`)

// moduleVersion reads the version from the first resource root or artifact
// of the module descriptor.
func moduleVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var m moduleXML
	if err := xml.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, e := range m.Resources.Entries {
		switch e.XMLName.Local {
		case "resource-root":
			if match := jarVersion.FindStringSubmatch(filepath.Base(e.Path)); match != nil {
				return match[1], nil
			}
		case "artifact":
			// group:artifact:version[:classifier], possibly wrapped in ${...}
			coords := strings.Split(strings.Trim(e.Name, "${}"), ":")
			if len(coords) >= 3 && coords[2] != "" {
				return coords[2], nil
			}
		}
	}
	return "", errors.New("no versioned resource root or artifact")
}

var versionParts = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:[.\-](.+))?$`)

// Normalize turns a module version into semver. Final and GA qualifiers mark
// a release; any other qualifier becomes a pre-release:
//
//	2.0.0.Final          -> 2.0.0
//	1.0.0.Beta2-SNAPSHOT -> 1.0.0-Beta2-SNAPSHOT
func Normalize(v string) (*semver.Version, error) {
	m := versionParts.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return nil, fmt.Errorf("invalid version %q", v)
	}
	normalized := m[1] + "." + orZero(m[2]) + "." + orZero(m[3])
	switch q := m[4]; strings.ToUpper(q) {
	case "", "FINAL", "GA", "RELEASE":
	default:
		normalized += "-" + strings.ReplaceAll(q, ".", "-")
	}
	return semver.StrictNewVersion(normalized)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// AtLeast reports whether found >= minimum after normalization.
func AtLeast(found, minimum string) (bool, error) {
	f, err := Normalize(found)
	if err != nil {
		return false, err
	}
	m, err := Normalize(minimum)
	if err != nil {
		return false, err
	}
	return !f.LessThan(m), nil
}
