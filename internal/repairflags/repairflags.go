// Package repairflags enumerates the repair engine's operational modes up front, per the
// DESIGN NOTES guidance to replace "dynamic config flags discovered via strings" with a struct
// parsed once. Grounded on cmd/vorteil/cli.go's commandInit flag-attachment pattern.
package repairflags

import (
	"strings"

	"github.com/imdario/mergo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Features lists the feature-upgrade requests spec.md §4.9 accepts.
type Features struct {
	InodeBtreeCount    bool
	BigTimestamps      bool
	NRExt64            bool
	FreeInodeBtree     bool
	Reflink            bool
	RmapBtree          bool
	ParentPointers     bool
	MetadataDirectory  bool
	RealtimeGroups     bool
}

// RepairFlags is the parsed set of operational modes described in spec.md §6.
type RepairFlags struct {
	NoModify bool // "no_modify": read/verify only
	ZapLog   bool // "zap_log": destroy the log if tail cannot be found
	Verbose  bool

	Add Features

	// DebugWriteCrash mirrors LIBXFS_DEBUG_WRITE_CRASH=ddev=N,logdev=M,rtdev=K.
	DebugWriteCrash DebugWriteCrash
	// LeakCheck mirrors LIBXFS_LEAK_CHECK.
	LeakCheck bool
}

// DebugWriteCrash simulates a crash after N/M/K writes to the respective device.
type DebugWriteCrash struct {
	DData int64
	DLog  int64
	DRt   int64
}

// Default returns the zero-value RepairFlags with Add all false (no feature upgrades requested).
func Default() RepairFlags {
	return RepairFlags{}
}

// BindPFlags attaches the repair engine's CLI flags to fs, grounded on the teacher's
// rootCmd.PersistentFlags() usage in cmd/vorteil/cli.go.
func (r *RepairFlags) BindPFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&r.NoModify, "no-modify", r.NoModify, "verify only; report would-be changes without writing")
	fs.BoolVar(&r.ZapLog, "zap-log", r.ZapLog, "destroy the log if its tail cannot be found")
	fs.BoolVarP(&r.Verbose, "verbose", "v", r.Verbose, "enable verbose diagnostics")
	fs.BoolVar(&r.Add.Reflink, "add-reflink", r.Add.Reflink, "request the reflink feature upgrade")
	fs.BoolVar(&r.Add.RmapBtree, "add-rmapbt", r.Add.RmapBtree, "request the reverse-mapping btree feature upgrade")
	fs.BoolVar(&r.Add.ParentPointers, "add-parent", r.Add.ParentPointers, "request the parent-pointer feature upgrade")
	fs.BoolVar(&r.Add.FreeInodeBtree, "add-finobt", r.Add.FreeInodeBtree, "request the free-inode btree feature upgrade")
	fs.BoolVar(&r.Add.InodeBtreeCount, "add-inobtcount", r.Add.InodeBtreeCount, "request the inode btree block counter feature upgrade")
	fs.BoolVar(&r.Add.BigTimestamps, "add-bigtime", r.Add.BigTimestamps, "request the large-timestamp feature upgrade")
	fs.BoolVar(&r.Add.NRExt64, "add-nrext64", r.Add.NRExt64, "request the 64-bit extent counter feature upgrade")
	fs.BoolVar(&r.Add.MetadataDirectory, "add-metadir", r.Add.MetadataDirectory, "request the metadata-directory feature upgrade")
	fs.BoolVar(&r.Add.RealtimeGroups, "add-rtgroups", r.Add.RealtimeGroups, "request the realtime-groups feature upgrade")
}

// LoadEnv parses LIBXFS_DEBUG_WRITE_CRASH and LIBXFS_LEAK_CHECK via viper's env binding, per
// spec.md §6's environment variable table.
func (r *RepairFlags) LoadEnv(v *viper.Viper) {
	v.SetEnvPrefix("")
	_ = v.BindEnv("libxfs_debug_write_crash", "LIBXFS_DEBUG_WRITE_CRASH")
	_ = v.BindEnv("libxfs_leak_check", "LIBXFS_LEAK_CHECK")

	if s := v.GetString("libxfs_debug_write_crash"); s != "" {
		r.DebugWriteCrash = parseDebugWriteCrash(s)
	}
	r.LeakCheck = v.IsSet("libxfs_leak_check")
}

func parseDebugWriteCrash(s string) DebugWriteCrash {
	var d DebugWriteCrash
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		n := parseInt(parts[1])
		switch parts[0] {
		case "ddev":
			d.DData = n
		case "logdev":
			d.DLog = n
		case "rtdev":
			d.DRt = n
		}
	}
	return d
}

func parseInt(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

// MergeDefaults fills any zero-valued field in r from defaults, grounded on the teacher's use of
// imdario/mergo for config-struct merging.
func (r *RepairFlags) MergeDefaults(defaults RepairFlags) error {
	return mergo.Merge(r, defaults)
}
