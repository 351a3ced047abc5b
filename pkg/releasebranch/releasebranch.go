package releasebranch

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

var (
	// 2.4, 2.4.1
	exactPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?$`)
	// 2.x, 2.4.x
	wildcardPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?\.x$`)
)

// Version is the parsed form of a release branch name.
type Version struct {
	Major int
	Minor int
	Patch int
	// HasPatch distinguishes "2.4" from "2.4.0".
	HasPatch bool
	// Wildcard is true for the "2.x" / "2.4.x" alias forms. Wildcard branches
	// compare by their concrete components and are never auto-selected.
	Wildcard bool
	Raw      string
}

// Parse recognizes the release branch naming patterns <major>.<minor>,
// <major>.<minor>.<patch>, <major>.x and <major>.<minor>.x. Anything else is
// not a release branch.
func Parse(branch string) (Version, bool) {
	if m := exactPattern.FindStringSubmatch(branch); m != nil {
		v := Version{Raw: branch}
		v.Major, _ = strconv.Atoi(m[1])
		v.Minor, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			v.Patch, _ = strconv.Atoi(m[3])
			v.HasPatch = true
		}
		return v, true
	}
	if m := wildcardPattern.FindStringSubmatch(branch); m != nil {
		v := Version{Raw: branch, Wildcard: true}
		v.Major, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			v.Minor, _ = strconv.Atoi(m[2])
		}
		return v, true
	}
	return Version{}, false
}

func (v Version) comparable() *version.Version {
	// Only digits and dots reach this point, so construction cannot fail.
	ver, err := version.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch))
	if err != nil {
		panic(err)
	}
	return ver
}

// Compare orders by (major, minor, patch-or-0). A missing patch counts as 0.
func (v Version) Compare(other Version) int {
	return v.comparable().Compare(other.comparable())
}

// SelectReleaseBranches picks the release branches worth checking out of all
// branch names in a repository. Unparseable names, excluded names and the
// wildcard alias forms are dropped. When majorOnly is set only the
// highest-patch branch per (major, minor) pair survives. The result is sorted
// newest release first.
func SelectReleaseBranches(allBranches, exclude []string, majorOnly bool) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, b := range exclude {
		excluded[b] = true
	}

	var versions []Version
	for _, branch := range allBranches {
		if excluded[branch] {
			continue
		}
		v, ok := Parse(branch)
		if !ok || v.Wildcard {
			continue
		}
		versions = append(versions, v)
	}

	if majorOnly {
		best := make(map[[2]int]Version, len(versions))
		for _, v := range versions {
			key := [2]int{v.Major, v.Minor}
			if cur, ok := best[key]; !ok || v.Patch > cur.Patch {
				best[key] = v
			}
		}
		versions = versions[:0]
		for _, v := range best {
			versions = append(versions, v)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		if c := versions[i].Compare(versions[j]); c != 0 {
			return c > 0
		}
		// "2.4" and "2.4.0" compare equal; keep the order deterministic.
		return versions[i].Raw > versions[j].Raw
	})

	if len(versions) == 0 {
		return nil
	}
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Raw)
	}
	return out
}

// TargetNotFoundError reports explicitly requested branches that do not exist
// in the repository. Detection against a nonexistent branch is meaningless,
// so this aborts the run before any detection work.
type TargetNotFoundError struct {
	Branches []string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target branch(es) not found in repository: %s", strings.Join(e.Branches, ", "))
}

// FilterExplicitTargets validates that every requested branch exists in
// allBranches, preserving the requested order.
func FilterExplicitTargets(allBranches, requested []string) ([]string, error) {
	existing := make(map[string]bool, len(allBranches))
	for _, b := range allBranches {
		existing[b] = true
	}

	var missing []string
	for _, b := range requested {
		if !existing[b] {
			missing = append(missing, b)
		}
	}
	if len(missing) > 0 {
		return nil, &TargetNotFoundError{Branches: missing}
	}
	return requested, nil
}
