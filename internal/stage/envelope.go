package stage

import (
	"time"

	"github.com/flarebyte/aegis/internal/config"
	"github.com/flarebyte/aegis/internal/discovery"
	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/snapshot"
)

// Actions understood by PreparedActionStages.
const (
	ActionInit       = "init"
	ActionCheck      = "check"
	ActionScan       = "scan"
	ActionScanDryRun = "scan-dry-run"
)

// Error is a stage error, optionally tied to one path.
type Error struct {
	Stage   string `json:"stage"`
	Locator string `json:"locator,omitempty"`
	Message string `json:"message"`
}

// ConfigMeta holds validated config essentials.
type ConfigMeta struct {
	ConfigVersion string `json:"configVersion"`
	Action        string `json:"action"`
}

// Overrides are command line settings applied on top of the config file.
type Overrides struct {
	Baseline     string `json:"baseline,omitempty"`
	Update       bool   `json:"update,omitempty"`
	FailOnChange bool   `json:"failOnChange,omitempty"`
}

type ErrorsMeta struct {
	Mode string `json:"mode"`
}

type CheckMeta struct {
	UpdateBaseline bool `json:"updateBaseline,omitempty"`
	FailOnChange   bool `json:"failOnChange,omitempty"`
	MetadataDrift  bool `json:"metadataDrift,omitempty"`
}

type OutputMeta struct {
	Out    string `json:"out,omitempty"`
	Format string `json:"format,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
}

type UIMeta struct {
	Progress           bool  `json:"progress,omitempty"`
	ProgressIntervalMs int64 `json:"progressIntervalMs,omitempty"`
}

// DiscoveryMeta summarizes the discover-files stage.
type DiscoveryMeta struct {
	Roots      []string `json:"roots"`
	Candidates int      `json:"candidates"`
	Filtered   int      `json:"filtered,omitempty"`
	Skipped    int      `json:"skipped,omitempty"`
}

// SnapshotMeta summarizes the snapshot-files stage.
type SnapshotMeta struct {
	Algorithm  string         `json:"algorithm"`
	Workers    int            `json:"workers"`
	DurationMs int64          `json:"durationMs"`
	Stats      snapshot.Stats `json:"stats"`
}

// BaselineMeta describes the persisted baseline used or written by the run.
type BaselineMeta struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Algorithm string `json:"algorithm,omitempty"`
	Found     bool   `json:"found"`
	Written   bool   `json:"written,omitempty"`
}

type RunMeta struct {
	ID        string    `json:"id,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	FirstRun  bool      `json:"firstRun"`
}

// Meta holds optional metadata with deterministic JSON field order.
type Meta struct {
	ContractVersion string            `json:"contractVersion,omitempty"`
	Stage           string            `json:"stage,omitempty"`
	ConfigPath      string            `json:"configPath,omitempty"`
	EnvFile         string            `json:"envFile,omitempty"`
	Overrides       *Overrides        `json:"overrides,omitempty"`
	Config          *ConfigMeta       `json:"config,omitempty"`
	Errors          *ErrorsMeta       `json:"errors,omitempty"`
	Check           *CheckMeta        `json:"check,omitempty"`
	Output          *OutputMeta       `json:"output,omitempty"`
	UI              *UIMeta           `json:"ui,omitempty"`
	Discovery       *DiscoveryMeta    `json:"discovery,omitempty"`
	Snapshot        *SnapshotMeta     `json:"snapshot,omitempty"`
	Baseline        *BaselineMeta     `json:"baseline,omitempty"`
	Diff            *integrity.Result `json:"diff,omitempty"`
	Run             *RunMeta          `json:"run,omitempty"`
}

// Envelope is the contract between stages. Field order is stable to keep
// JSON deterministic. Fields tagged "-" carry runtime state that is rebuilt
// rather than serialized.
type Envelope struct {
	Records    []record.Record       `json:"records"`
	Candidates []discovery.Candidate `json:"candidates,omitempty"`
	Meta       *Meta                 `json:"meta,omitempty"`
	Errors     []Error               `json:"errors,omitempty"`

	Config   *config.Config     `json:"-"`
	Roots    []string           `json:"-"`
	Current  *snapshot.Snapshot `json:"-"`
	Baseline *snapshot.Snapshot `json:"-"`
}

// Action returns the action recorded in meta, or "".
func (e Envelope) Action() string {
	if e.Meta != nil && e.Meta.Config != nil {
		return e.Meta.Config.Action
	}
	return ""
}

func ensureMeta(env *Envelope) *Meta {
	if env.Meta == nil {
		env.Meta = &Meta{}
	}
	return env.Meta
}
