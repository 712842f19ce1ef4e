package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	// rollout-<timestamp>-<uuid>.jsonl, timestamp may itself contain
	// dashes, so the uuid is anchored at the end.
	codexFileRe = regexp.MustCompile(`^rollout-.+-([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\.jsonl$`)
	// session-<iso-timestamp>-<id>.json, id is whatever trails the last
	// dash; Gemini ids aren't spec'd as UUIDs so only presence is checked.
	geminiFileRe = regexp.MustCompile(`^session-.+-([^-]+)\.json$`)
	// agent-<id>.jsonl under a session's subagents/ directory.
	subagentFileRe = regexp.MustCompile(`^agent-(.+)\.jsonl$`)
)

// Scan walks every root in roots and returns every recognized
// transcript file across all three CLI families, non-UUID or
// malformed names silently skipped per spec §6 ("non-UUID files are
// skipped"). Results are sorted by Path for deterministic ordering.
func Scan(roots []string) ([]SessionFile, error) {
	var out []SessionFile
	for _, root := range roots {
		claude, err := scanClaudeCode(filepath.Join(root, "projects"))
		if err != nil {
			return nil, err
		}
		out = append(out, claude...)

		codex, err := scanCodex(filepath.Join(root, "sessions"))
		if err != nil {
			return nil, err
		}
		out = append(out, codex...)

		gemini, err := scanGemini(filepath.Join(root, "tmp"))
		if err != nil {
			return nil, err
		}
		out = append(out, gemini...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// scanClaudeCode finds <projectsRoot>/<encoded-path>/<uuid>.jsonl and
// its subagents/agent-<id>.jsonl children.
func scanClaudeCode(projectsRoot string) ([]SessionFile, error) {
	var out []SessionFile
	entries, err := statDirEntries(projectsRoot)
	if err != nil {
		return nil, err
	}

	for _, projDir := range entries {
		if !projDir.IsDir() {
			continue
		}
		workingDir := DecodePath(projDir.Name())
		sessionDirPath := filepath.Join(projectsRoot, projDir.Name())

		sessionEntries, err := statDirEntries(sessionDirPath)
		if err != nil {
			return nil, err
		}
		for _, se := range sessionEntries {
			if se.IsDir() {
				continue
			}
			id, ok := claudeCodeSessionID(se.Name())
			if !ok {
				continue
			}
			out = append(out, SessionFile{
				Path:       filepath.Join(sessionDirPath, se.Name()),
				Family:     FamilyClaudeCode,
				SessionID:  id,
				WorkingDir: workingDir,
			})
		}

		// <uuid>/subagents/agent-<id>.jsonl — one level per top-level session.
		for _, se := range sessionEntries {
			if !se.IsDir() {
				continue
			}
			parentID, ok := parseUUID(se.Name())
			if !ok {
				continue
			}
			subagentsDir := filepath.Join(sessionDirPath, se.Name(), "subagents")
			subEntries, err := statDirEntries(subagentsDir)
			if err != nil {
				continue // no subagents/ directory for this session is not an error
			}
			for _, sub := range subEntries {
				if sub.IsDir() {
					continue
				}
				m := subagentFileRe.FindStringSubmatch(sub.Name())
				if m == nil {
					continue
				}
				out = append(out, SessionFile{
					Path:            filepath.Join(subagentsDir, sub.Name()),
					Family:          FamilyClaudeCodeSubagent,
					SessionID:       fmt.Sprintf("%s/agent-%s", parentID, m[1]),
					WorkingDir:      workingDir,
					ParentSessionID: parentID,
				})
			}
		}
	}
	return out, nil
}

// claudeCodeSessionID validates name as "<uuid>.jsonl" and returns the
// UUID, strictly (spec §6: "UUID format for Claude Code filenames is
// strictly validated; non-UUID files are skipped").
func claudeCodeSessionID(name string) (string, bool) {
	if !strings.HasSuffix(name, ".jsonl") {
		return "", false
	}
	return parseUUID(strings.TrimSuffix(name, ".jsonl"))
}

func parseUUID(s string) (string, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// scanCodex finds <sessionsRoot>/YYYY/MM/DD/rollout-<timestamp>-<uuid>.jsonl.
func scanCodex(sessionsRoot string) ([]SessionFile, error) {
	var out []SessionFile
	err := filepath.WalkDir(sessionsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == sessionsRoot {
				return nil // root doesn't exist; this CLI family just isn't present
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := codexFileRe.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		out = append(out, SessionFile{
			Path:      path,
			Family:    FamilyCodex,
			SessionID: m[1],
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: scan codex under %s: %w", sessionsRoot, err)
	}
	return out, nil
}

// scanGemini finds <tmpRoot>/<hash>/chats/session-<iso-timestamp>-<id>.json.
func scanGemini(tmpRoot string) ([]SessionFile, error) {
	var out []SessionFile
	hashDirs, err := statDirEntries(tmpRoot)
	if err != nil {
		return nil, err
	}
	for _, hd := range hashDirs {
		if !hd.IsDir() {
			continue
		}
		chatsDir := filepath.Join(tmpRoot, hd.Name(), "chats")
		chatFiles, err := statDirEntries(chatsDir)
		if err != nil {
			continue // no chats/ directory for this hash bucket is not an error
		}
		for _, cf := range chatFiles {
			if cf.IsDir() {
				continue
			}
			m := geminiFileRe.FindStringSubmatch(cf.Name())
			if m == nil {
				continue
			}
			out = append(out, SessionFile{
				Path:      filepath.Join(chatsDir, cf.Name()),
				Family:    FamilyGemini,
				SessionID: m[1],
			})
		}
	}
	return out, nil
}

// statDirEntries lists dir's entries, treating a missing directory as
// "nothing found" rather than an error — a watch root need not contain
// every CLI family's layout.
func statDirEntries(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("discovery: read %s: %w", dir, err)
	}
	return entries, nil
}
