package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Suite is a resolved program suite: a manifest plus the directory it was
// loaded from.
type Suite struct {
	Name     string
	Dir      string
	Source   string
	Manifest *Manifest
}

// Fetcher resolves suite dependencies. Git dependencies are checked out under
// <CacheDir>/suites/<name>/<version>.
type Fetcher struct {
	CacheDir string
}

func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{CacheDir: cacheDir}
}

// Resolve returns the root suite followed by every transitive dependency in
// discovery order. Each dependency name is resolved once.
func (f *Fetcher) Resolve(root *Manifest) ([]*Suite, error) {
	if root == nil {
		return nil, errors.New("fetch: nil manifest")
	}
	suites := []*Suite{{Name: root.Name, Dir: root.Dir(), Source: "root", Manifest: root}}
	seen := map[string]struct{}{root.Name: {}}

	for i := 0; i < len(suites); i++ {
		current := suites[i].Manifest
		for _, name := range current.DependencyNames() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			suite, err := f.Fetch(current, name, current.Dependencies[name])
			if err != nil {
				return nil, err
			}
			suites = append(suites, suite)
		}
	}
	return suites, nil
}

// Fetch materialises one dependency of owner and loads its manifest.
func (f *Fetcher) Fetch(owner *Manifest, name string, spec *DependencySpec) (*Suite, error) {
	if spec == nil {
		return nil, fmt.Errorf("dependency %q: missing specification", name)
	}
	var dir, source string
	if spec.IsGit() {
		if f == nil || f.CacheDir == "" {
			return nil, fmt.Errorf("dependency %q: git fetcher unavailable without a cache directory", name)
		}
		baseDir := filepath.Join(f.CacheDir, "suites", sanitizePathSegment(name))
		version, commit, err := ensureGitCheckout(baseDir, spec)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
		dir = filepath.Join(baseDir, sanitizePathSegment(version))
		source = fmt.Sprintf("git+%s@%s", spec.Git, commit)
	} else {
		dir = spec.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(owner.Dir(), dir)
		}
		source = "path:" + dir
	}

	manifest, err := LoadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("dependency %q: %w", name, err)
	}
	return &Suite{Name: name, Dir: dir, Source: source, Manifest: manifest}, nil
}

func ensureGitCheckout(baseDir string, spec *DependencySpec) (string, string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", err
	}

	revision, descriptor, err := gitRevisionFromSpec(spec)
	if err != nil {
		return "", "", err
	}

	if spec.Rev != "" {
		existing := filepath.Join(baseDir, sanitizePathSegment(spec.Rev))
		if _, err := os.Stat(existing); err == nil {
			return spec.Rev, spec.Rev, nil
		}
	}

	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", "", err
	}

	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{URL: spec.Git})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git clone %s: %w", spec.Git, err)
	}

	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}

	version := gitPinnedVersion(descriptor, hash.String())
	targetDir := filepath.Join(baseDir, sanitizePathSegment(version))
	if _, err := os.Stat(targetDir); err == nil {
		_ = os.RemoveAll(tmpDir)
		return version, hash.String(), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git checkout %s: %w", revision, err)
	}

	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	return version, hash.String(), nil
}

func gitPinnedVersion(descriptor, commit string) string {
	if commit == "" {
		return descriptor
	}
	if descriptor == "" || descriptor == commit {
		return commit
	}
	return fmt.Sprintf("%s@%s", descriptor, commit)
}

func gitRevisionFromSpec(spec *DependencySpec) (plumbing.Revision, string, error) {
	if spec.Rev != "" {
		return plumbing.Revision(spec.Rev), spec.Rev, nil
	}
	if spec.Tag != "" {
		return plumbing.Revision("refs/tags/" + spec.Tag), spec.Tag, nil
	}
	if spec.Branch != "" {
		return plumbing.Revision("refs/heads/" + spec.Branch), spec.Branch, nil
	}
	return "", "", fmt.Errorf("git dependencies require rev, tag, or branch")
}

func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	var b strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
