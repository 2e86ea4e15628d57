// Package remedy applies deterministic fixes to definition artifacts and
// packages semantic fixes as proposals for an external decision-maker. The
// engine never guesses content requiring judgment: a semantic fix is only
// applied when a caller explicitly selects it by id and the descriptor
// carries a concrete edit.
package remedy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/audit"
	"github.com/defkit/defkit/pkg/logger"
	"github.com/defkit/defkit/pkg/registry"
)

// Mode selects whether deterministic fixes are written to storage or only
// proposed.
type Mode string

const (
	// ModeAutoApply writes deterministic fixes and verifies each one.
	ModeAutoApply Mode = "auto"
	// ModeSuggest is side-effect-free: every fix becomes a proposal.
	ModeSuggest Mode = "suggest"
)

// maxFixIterations bounds the apply/re-check loop for one phase. Each
// applied fix must remove at least one violation, so the artifact's fix
// count is a natural ceiling; the bound guards against a misbehaving phase.
const maxFixIterations = 32

// ErrConflict reports that the artifact changed on disk after it was
// loaded. The conflict is retryable by the caller after re-discovery; the
// engine never retries on its own.
var ErrConflict = errors.New("artifact changed on disk since it was loaded")

// VerificationError reports a deterministic fix that did not make its
// violation go away. The edit has been rolled back.
type VerificationError struct {
	FixID   string
	PhaseID string
	Message string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("fix %s did not resolve phase %s: %s", e.FixID, e.PhaseID, e.Message)
}

// AppliedFix records one verified fix and the phase verdict after it.
type AppliedFix struct {
	Fix     audit.FixDescriptor
	Verdict audit.Verdict
}

// FailedFix records a fix whose application or verification failed.
type FailedFix struct {
	Fix audit.FixDescriptor
	Err error
}

// Result reports the outcome of one remediation pass.
type Result struct {
	Applied  []AppliedFix
	Proposed []audit.FixDescriptor
	Failed   []FailedFix
	// Artifact is the current on-disk state after any applied fixes.
	Artifact *artifact.Artifact
}

// Engine applies fixes from audit verdicts. Writers are serialized per
// artifact path within the process; cross-process locking is the caller's
// responsibility.
type Engine struct {
	auditor *audit.Engine

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a remediation engine on top of an audit engine.
func NewEngine(auditor *audit.Engine) *Engine {
	return &Engine{
		auditor: auditor,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *Engine) pathLock(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[path]
	if !ok {
		l = &sync.Mutex{}
		e.locks[path] = l
	}
	return l
}

// Remediate processes the verdict set for one artifact. Deterministic fixes
// are applied and verified in AutoApply mode; semantic fixes always come
// back as proposals. Suggest mode never touches the filesystem.
func (e *Engine) Remediate(ctx context.Context, art *artifact.Artifact, verdicts []audit.Verdict, snap *registry.Snapshot, mode Mode) (*Result, error) {
	result := &Result{Artifact: art}

	for _, v := range verdicts {
		for _, f := range v.Fixes {
			if f.Kind == audit.FixSemantic || mode == ModeSuggest {
				result.Proposed = append(result.Proposed, f)
			}
		}
	}
	if mode == ModeSuggest {
		return result, nil
	}

	lock := e.pathLock(art.Path)
	lock.Lock()
	defer lock.Unlock()

	current := art
	for _, v := range verdicts {
		if !hasDeterministicFix(v) {
			continue
		}
		updated, err := e.fixPhase(ctx, current, snap, v.PhaseID, "", result)
		if err != nil {
			return result, err
		}
		current = updated
	}

	result.Artifact = current
	return result, nil
}

// ApplyByID applies one fix selected by an external decision-maker. For
// semantic fixes the descriptor must carry a concrete edit.
func (e *Engine) ApplyByID(ctx context.Context, art *artifact.Artifact, verdicts []audit.Verdict, snap *registry.Snapshot, fixID string) (*Result, error) {
	result := &Result{Artifact: art}

	var selected *audit.FixDescriptor
	for _, v := range verdicts {
		for _, f := range v.Fixes {
			if f.ID == fixID {
				selected = &f
				break
			}
		}
	}
	if selected == nil {
		return result, errors.Errorf("no fix with id %q in the verdict set", fixID)
	}
	if selected.Header == nil && selected.Body == nil {
		return result, errors.Errorf("fix %q carries no concrete edit; supply one before applying", fixID)
	}

	lock := e.pathLock(art.Path)
	lock.Lock()
	defer lock.Unlock()

	if selected.Kind == audit.FixDeterministic {
		updated, err := e.fixPhase(ctx, art, snap, selected.PhaseID, fixID, result)
		if err != nil {
			return result, err
		}
		result.Artifact = updated
		return result, nil
	}

	updated, err := e.applyOnce(ctx, art, snap, *selected, result, false)
	if err != nil {
		return result, err
	}
	result.Artifact = updated
	return result, nil
}

// fixPhase runs the apply/re-check loop for one phase: re-run the phase,
// apply its first deterministic fix (or the selected one), verify, repeat
// until the phase passes or no deterministic fix remains.
func (e *Engine) fixPhase(ctx context.Context, art *artifact.Artifact, snap *registry.Snapshot, phaseID, onlyFixID string, result *Result) (*artifact.Artifact, error) {
	current := art
	for i := 0; i < maxFixIterations; i++ {
		verdict, err := e.auditor.RunPhase(current, snap, phaseID)
		if err != nil {
			return current, err
		}
		if verdict.Severity == audit.SeverityPass {
			return current, nil
		}

		fix, ok := pickFix(verdict, onlyFixID)
		if !ok {
			return current, nil
		}

		updated, err := e.applyOnce(ctx, current, snap, fix, result, true)
		if err != nil {
			return current, err
		}
		current = updated

		if onlyFixID != "" {
			return current, nil
		}
	}
	return current, errors.Errorf("phase %s did not converge after %d fixes", phaseID, maxFixIterations)
}

// applyOnce writes a single fix, verifies it against its own phase, and
// rolls the file back if the same violation is still reported. The write is
// guarded by a content hash precondition so a concurrent writer surfaces as
// ErrConflict instead of a silent overwrite.
func (e *Engine) applyOnce(ctx context.Context, art *artifact.Artifact, snap *registry.Snapshot, fix audit.FixDescriptor, result *Result, verify bool) (*artifact.Artifact, error) {
	original, err := os.ReadFile(art.Path)
	if err != nil {
		return art, errors.Wrapf(err, "failed to read %s", art.Path)
	}
	sum := sha256.Sum256(original)
	if hex.EncodeToString(sum[:]) != art.SourceHash {
		return art, errors.Wrapf(ErrConflict, "%s", art.Path)
	}

	edited, err := renderFix(art, fix)
	if err != nil {
		return art, err
	}

	if err := os.WriteFile(art.Path, edited, 0o644); err != nil {
		return art, errors.Wrapf(err, "failed to write %s", art.Path)
	}

	updated := artifact.Load(art.Path, art.Location)

	if verify {
		verdict, err := e.auditor.RunPhase(updated, snap, fix.PhaseID)
		if err == nil && stillViolated(verdict, fix.ID) {
			err = &VerificationError{FixID: fix.ID, PhaseID: fix.PhaseID, Message: verdict.Message}
		}
		if err != nil {
			if rbErr := os.WriteFile(art.Path, original, 0o644); rbErr != nil {
				return art, errors.Wrapf(rbErr, "failed to roll back %s after unverified fix %s", art.Path, fix.ID)
			}
			logger.G(ctx).WithFields(map[string]interface{}{
				"artifact": art.Identifier,
				"fix":      fix.ID,
			}).WithError(err).Error("Fix failed verification, rolled back")
			result.Failed = append(result.Failed, FailedFix{Fix: fix, Err: err})
			return art, err
		}
		result.Applied = append(result.Applied, AppliedFix{Fix: fix, Verdict: verdict})
	} else {
		result.Applied = append(result.Applied, AppliedFix{Fix: fix})
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"artifact": art.Identifier,
		"fix":      fix.ID,
	}).Debug("Applied fix")

	return updated, nil
}

// renderFix produces the edited file content for a fix.
func renderFix(art *artifact.Artifact, fix audit.FixDescriptor) ([]byte, error) {
	header := art.Header
	if fix.Header != nil {
		header = *fix.Header
	}

	body := art.Body
	if fix.Body != nil && fix.Body.Proposed != "" {
		if fix.Body.Section != "" {
			body = appendSection(body, fix.Body.Section, fix.Body.Proposed)
		} else {
			body = strings.TrimRight(body, "\n") + "\n\n" + fix.Body.Proposed + "\n"
		}
	}

	return artifact.Render(header, body)
}

func appendSection(body, section, content string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("## " + section + "\n\n")
	b.WriteString(strings.TrimRight(content, "\n"))
	b.WriteString("\n")
	return b.String()
}

func hasDeterministicFix(v audit.Verdict) bool {
	for _, f := range v.Fixes {
		if f.Kind == audit.FixDeterministic {
			return true
		}
	}
	return false
}

// pickFix selects the next deterministic fix from a verdict, or the one
// matching onlyFixID when set.
func pickFix(v audit.Verdict, onlyFixID string) (audit.FixDescriptor, bool) {
	for _, f := range v.Fixes {
		if f.Kind != audit.FixDeterministic {
			continue
		}
		if onlyFixID != "" && f.ID != onlyFixID {
			continue
		}
		return f, true
	}
	return audit.FixDescriptor{}, false
}

// stillViolated reports whether the re-checked verdict still proposes the
// fix that was just applied, meaning the fix did not resolve its violation.
func stillViolated(v audit.Verdict, fixID string) bool {
	for _, f := range v.Fixes {
		if f.ID == fixID {
			return true
		}
	}
	return false
}
