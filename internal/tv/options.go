package tv

import (
	"fmt"
	"runtime"
	"strings"
)

// ConflictPolicy decides which side wins when both sides of a sync hold
// different content for the same relative path.
type ConflictPolicy int

const (
	// PolicyNewer copies from the side with the later modification time.
	PolicyNewer ConflictPolicy = iota
	// PolicyLarger copies from the side with the larger size.
	PolicyLarger
	// PolicySource always copies from the source (A) side.
	PolicySource
	// PolicyTarget always copies from the target (B) side.
	PolicyTarget
)

var policyNames = map[ConflictPolicy]string{
	PolicyNewer:  "newer",
	PolicyLarger: "larger",
	PolicySource: "source",
	PolicyTarget: "target",
}

func (p ConflictPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ConflictPolicy(%d)", int(p))
}

// ParseConflictPolicy parses newer, larger, source or target.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, preconditionf("unknown conflict resolution %q (want newer, larger, source or target)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p ConflictPolicy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("invalid conflict policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ConflictPolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseConflictPolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// SyncOptions configures a single synchronization pass.
type SyncOptions struct {
	Bidirectional      bool
	DeleteExtraneous   bool
	PreserveTimestamps bool
	ExcludePatterns    []string
	IncludeHidden      bool
	DryRun             bool
	ConflictResolution ConflictPolicy
	HashAlgorithm      string
	// Workers bounds per-file concurrency; <= 0 means runtime.NumCPU().
	Workers int

	// skipDirs are extra absolute directories left out of the source walk.
	skipDirs []string
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.HashAlgorithm == "" {
		o.HashAlgorithm = DefaultHashAlgorithm
	}
	return o
}

func (o SyncOptions) validate() error {
	if _, ok := policyNames[o.ConflictResolution]; !ok {
		return preconditionf("invalid conflict resolution %d", int(o.ConflictResolution))
	}
	if _, err := ParseAlgorithm(o.HashAlgorithm); err != nil {
		return err
	}
	return nil
}

func (o SyncOptions) walkOptions() WalkOptions {
	return WalkOptions{Exclude: o.ExcludePatterns, IncludeHidden: o.IncludeHidden}
}

func (o SyncOptions) sourceWalkOptions(skip string) WalkOptions {
	w := o.walkOptions()
	w.SkipDirs = append([]string{skip}, o.skipDirs...)
	return w
}
