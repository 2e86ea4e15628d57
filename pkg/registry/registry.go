// Package registry discovers definition artifacts across the two storage
// tiers and exposes an immutable snapshot for the audit and search engines.
// Discovery is read-only and deterministic given unchanged filesystem state.
package registry

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/logger"
)

// loadConcurrency bounds parallel file reads during discovery.
const loadConcurrency = 8

// Discovery locates artifact files in the configured tier directories.
// Earlier directories within a tier take precedence when two files share an
// identifier.
type Discovery struct {
	primaryDirs []string
	libraryDirs []string
}

// Option configures a Discovery.
type Option func(*Discovery) error

// WithTierDirs sets explicit primary and library tier directories.
func WithTierDirs(primary, library []string) Option {
	return func(d *Discovery) error {
		if len(primary) == 0 && len(library) == 0 {
			return errors.New("at least one tier directory must be specified")
		}
		d.primaryDirs = primary
		d.libraryDirs = library
		return nil
	}
}

// WithDefaultDirs initializes the default tier directories: repo-local
// first, then the user-global equivalents.
func WithDefaultDirs() Option {
	return func(d *Discovery) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		d.primaryDirs = []string{
			"./.defkit/agents",
			filepath.Join(homeDir, ".defkit", "agents"),
		}
		d.libraryDirs = []string{
			"./.defkit/library",
			filepath.Join(homeDir, ".defkit", "library"),
		}
		return nil
	}
}

// NewDiscovery creates a discovery instance. Without options the default
// tier directories are used.
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{}

	if len(opts) == 0 {
		if err := WithDefaultDirs()(d); err != nil {
			return nil, err
		}
		return d, nil
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

type candidate struct {
	path       string
	identifier string
	location   artifact.Location
}

// Discover walks the requested tiers and parses every candidate file.
// Parse failures never abort the batch: a malformed file yields an artifact
// with its ParseErr marker set. With no scopes, both tiers are walked.
func (d *Discovery) Discover(ctx context.Context, scopes ...artifact.Location) ([]*artifact.Artifact, error) {
	if len(scopes) == 0 {
		scopes = []artifact.Location{artifact.LocationPrimary, artifact.LocationLibrary}
	}

	var candidates []candidate
	for _, scope := range scopes {
		var dirs []string
		switch scope {
		case artifact.LocationPrimary:
			dirs = d.primaryDirs
		case artifact.LocationLibrary:
			dirs = d.libraryDirs
		default:
			return nil, errors.Errorf("unknown location %q", scope)
		}
		found, err := collectCandidates(ctx, dirs, scope)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	arts := make([]*artifact.Artifact, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			arts[i] = artifact.Load(c.path, c.location)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "artifact discovery interrupted")
	}

	sort.Slice(arts, func(i, j int) bool {
		if arts[i].Location != arts[j].Location {
			return arts[i].Location == artifact.LocationPrimary
		}
		return arts[i].Identifier < arts[j].Identifier
	})

	logger.G(ctx).WithField("count", len(arts)).Debug("Discovered artifacts")
	return arts, nil
}

// collectCandidates enumerates artifact files under the tier directories,
// deduplicating identifiers by directory precedence. The library tier may
// nest category directories, so files are matched recursively. Missing
// directories are skipped; other walk errors are aggregated across
// directories so one broken dir does not mask another.
func collectCandidates(ctx context.Context, dirs []string, loc artifact.Location) ([]candidate, error) {
	var candidates []candidate
	var walkErrs *multierror.Error
	seen := make(map[string]bool)

	for _, dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			logger.G(ctx).WithField("dir", dir).Debug("Tier directory does not exist, skipping")
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
		if err != nil {
			walkErrs = multierror.Append(walkErrs, errors.Wrapf(err, "failed to walk %s", dir))
			continue
		}
		sort.Strings(matches)

		for _, match := range matches {
			if hiddenPath(match) {
				continue
			}
			identifier := artifact.IdentifierFromPath(match)
			if seen[identifier] {
				continue
			}
			seen[identifier] = true
			candidates = append(candidates, candidate{
				path:       filepath.Join(dir, filepath.FromSlash(match)),
				identifier: identifier,
				location:   loc,
			})
		}
	}

	return candidates, walkErrs.ErrorOrNil()
}

func hiddenPath(slashPath string) bool {
	for _, part := range strings.Split(slashPath, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Snapshot is an immutable registry view taken at one point in time. It is
// safe for concurrent readers and must be re-taken after remediation writes.
type Snapshot struct {
	arts  []*artifact.Artifact
	index map[artifact.Location]map[string]*artifact.Artifact
}

// NewSnapshot builds a snapshot over the given artifact set.
func NewSnapshot(arts []*artifact.Artifact) *Snapshot {
	index := map[artifact.Location]map[string]*artifact.Artifact{
		artifact.LocationPrimary: {},
		artifact.LocationLibrary: {},
	}
	for _, a := range arts {
		tier := index[a.Location]
		if tier == nil {
			continue
		}
		if _, exists := tier[a.Identifier]; !exists {
			tier[a.Identifier] = a
		}
	}
	return &Snapshot{arts: arts, index: index}
}

// Artifacts returns the snapshot's artifacts in discovery order.
func (s *Snapshot) Artifacts() []*artifact.Artifact {
	return s.arts
}

// Len returns the number of artifacts in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.arts)
}

// Resolve looks up an identifier across both tiers, preferring the primary
// tier.
func (s *Snapshot) Resolve(identifier string) (*artifact.Artifact, bool) {
	if a, ok := s.index[artifact.LocationPrimary][identifier]; ok {
		return a, true
	}
	if a, ok := s.index[artifact.LocationLibrary][identifier]; ok {
		return a, true
	}
	return nil, false
}

// ResolveIn looks up an identifier within a single tier.
func (s *Snapshot) ResolveIn(loc artifact.Location, identifier string) (*artifact.Artifact, bool) {
	tier, ok := s.index[loc]
	if !ok {
		return nil, false
	}
	a, ok := tier[identifier]
	return a, ok
}
