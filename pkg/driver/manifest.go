package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file that marks the root of a program suite.
const ManifestName = "suite.yml"

var ErrManifestNotFound = errors.New("suite.yml not found")

// Manifest represents the parsed contents of suite.yml.
type Manifest struct {
	Path         string
	Name         string
	Programs     []string
	Dependencies map[string]*DependencySpec
}

// DependencySpec points at another suite, either on disk or in a git
// repository.
type DependencySpec struct {
	Path   string
	Git    string
	Rev    string
	Tag    string
	Branch string
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

type manifestFile struct {
	Name         string                     `yaml:"name"`
	Programs     []string                   `yaml:"programs"`
	Dependencies map[string]*dependencyYAML `yaml:"dependencies"`
}

type dependencyYAML struct {
	Path   string `yaml:"path"`
	Git    string `yaml:"git"`
	Rev    string `yaml:"rev"`
	Tag    string `yaml:"tag"`
	Branch string `yaml:"branch"`
}

// LoadManifest parses suite.yml from disk, returning a validated manifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	manifest := raw.toManifest(absPath)
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (mf manifestFile) toManifest(path string) *Manifest {
	result := &Manifest{
		Path:         path,
		Name:         strings.TrimSpace(mf.Name),
		Programs:     make([]string, 0, len(mf.Programs)),
		Dependencies: make(map[string]*DependencySpec, len(mf.Dependencies)),
	}
	for _, program := range mf.Programs {
		result.Programs = append(result.Programs, strings.TrimSpace(program))
	}
	for name, dep := range mf.Dependencies {
		spec := &DependencySpec{}
		if dep != nil {
			spec.Path = strings.TrimSpace(dep.Path)
			spec.Git = strings.TrimSpace(dep.Git)
			spec.Rev = strings.TrimSpace(dep.Rev)
			spec.Tag = strings.TrimSpace(dep.Tag)
			spec.Branch = strings.TrimSpace(dep.Branch)
		}
		result.Dependencies[strings.TrimSpace(name)] = spec
	}
	return result
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Name == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	}
	for i, program := range m.Programs {
		if program == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("programs[%d] must be a non-empty path", i))
		}
	}
	for _, name := range m.DependencyNames() {
		if name == "" {
			errs.Issues = append(errs.Issues, "dependency names must be non-empty")
			continue
		}
		for _, issue := range m.Dependencies[name].validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependencies.%s: %s", name, issue))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func (d *DependencySpec) validate() []string {
	var errs []string
	switch {
	case d.Path == "" && d.Git == "":
		errs = append(errs, "must specify path or git")
	case d.Path != "" && d.Git != "":
		errs = append(errs, "path dependencies cannot also specify git")
	}
	pins := 0
	for _, pin := range []string{d.Rev, d.Tag, d.Branch} {
		if pin != "" {
			pins++
		}
	}
	if d.Path != "" && pins > 0 {
		errs = append(errs, "rev, tag and branch apply only to git dependencies")
	}
	if d.Git != "" && pins != 1 {
		errs = append(errs, "git dependencies require exactly one of rev, tag or branch")
	}
	return errs
}

// IsGit reports whether the dependency is fetched from a repository.
func (d *DependencySpec) IsGit() bool { return d != nil && d.Git != "" }

// Dir is the directory holding the manifest.
func (m *Manifest) Dir() string { return filepath.Dir(m.Path) }

// DependencyNames lists dependency names in sorted order.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProgramPaths expands the programs list relative to the manifest directory.
// Entries may be globs; the result is sorted, free of duplicates and never
// includes the manifest itself.
func (m *Manifest) ProgramPaths() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range m.Programs {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(m.Dir(), pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("manifest: programs pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("manifest: no program matches %s", pattern)
		}
		for _, match := range matches {
			if filepath.Base(match) == ManifestName {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, match)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FindManifest walks up from start looking for suite.yml.
func FindManifest(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start directory %q: %w", start, err)
	}
	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	origin := dir
	for {
		candidate := filepath.Join(dir, ManifestName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found from %s upwards: %w", ManifestName, origin, ErrManifestNotFound)
		}
		dir = parent
	}
}
