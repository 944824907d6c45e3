package upgrade

import (
	"github.com/xrepair/xrepair/internal/repairflags"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// featureBit pairs a requested feature with the superblock word it lives in and the predicate
// that says whether the current superblock already carries it, mirroring the teacher's
// VersionNum/MoreFeatures bit-OR style in pkg/xfs/xfs.go's superblock literal.
type featureBit struct {
	name    string
	already func(sb xfsfmt.SuperBlock) bool
	apply   func(sb *xfsfmt.SuperBlock)
	// dependsOn reports a dependency failure message, or "" if the dependency is satisfied. req
	// is the full requested set so cross-feature combinations (rmap + realtime) can be checked.
	dependsOn func(sb xfsfmt.SuperBlock, req repairflags.Features) string
}

func requested(req repairflags.Features) []featureBit {
	var out []featureBit
	if req.InodeBtreeCount {
		out = append(out, featureBit{
			name:    "inode-btree-count",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.RoCompatFeatures&xfsfmt.RoCompatInobtcnt != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.RoCompatFeatures |= xfsfmt.RoCompatInobtcnt },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if sb.RoCompatFeatures&xfsfmt.RoCompatFinobt == 0 && !req.FreeInodeBtree {
					return "inode-btree-count requires the free-inode btree"
				}
				return ""
			},
		})
	}
	if req.BigTimestamps {
		out = append(out, featureBit{
			name:    "large-timestamps",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.IncompatFeatures&xfsfmt.IncompatBigtime != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.IncompatFeatures |= xfsfmt.IncompatBigtime },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "large-timestamps requires a v5 (CRC-enabled) filesystem"
				}
				return ""
			},
		})
	}
	if req.NRExt64 {
		out = append(out, featureBit{
			name:    "64bit-extent-counters",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.IncompatFeatures&xfsfmt.IncompatNRExt64 != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.IncompatFeatures |= xfsfmt.IncompatNRExt64 },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "64bit-extent-counters requires a v5 (CRC-enabled) filesystem"
				}
				return ""
			},
		})
	}
	if req.FreeInodeBtree {
		out = append(out, featureBit{
			name:    "free-inode-btree",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.RoCompatFeatures&xfsfmt.RoCompatFinobt != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.RoCompatFeatures |= xfsfmt.RoCompatFinobt },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "free-inode-btree requires a v5 (CRC-enabled) filesystem"
				}
				return ""
			},
		})
	}
	if req.Reflink {
		out = append(out, featureBit{
			name:    "reflink",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.RoCompatFeatures&xfsfmt.RoCompatReflink != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.RoCompatFeatures |= xfsfmt.RoCompatReflink },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "reflink requires a v5 (CRC-enabled) filesystem"
				}
				if sb.RoCompatFeatures&xfsfmt.RoCompatRmapbt == 0 && !req.RmapBtree {
					return "reflink requires the reverse-mapping btree"
				}
				return ""
			},
		})
	}
	if req.RmapBtree {
		out = append(out, featureBit{
			name:    "rmap-btree",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.RoCompatFeatures&xfsfmt.RoCompatRmapbt != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.RoCompatFeatures |= xfsfmt.RoCompatRmapbt },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "rmap-btree requires a v5 (CRC-enabled) filesystem"
				}
				if sb.RtGroupCount > 0 && !req.RealtimeGroups {
					return "rmap-btree is not allowed together with realtime groups on this filesystem"
				}
				return ""
			},
		})
	}
	if req.ParentPointers {
		out = append(out, featureBit{
			name:    "parent-pointers",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.IncompatFeatures&xfsfmt.IncompatParent != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.IncompatFeatures |= xfsfmt.IncompatParent },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "parent-pointers requires a v5 (CRC-enabled) filesystem"
				}
				return ""
			},
		})
	}
	if req.MetadataDirectory {
		out = append(out, featureBit{
			name:    "metadata-directory",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.IncompatFeatures&xfsfmt.IncompatMetadir != 0 },
			apply:   func(sb *xfsfmt.SuperBlock) { sb.IncompatFeatures |= xfsfmt.IncompatMetadir },
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "metadata-directory requires a v5 (CRC-enabled) filesystem"
				}
				return ""
			},
		})
	}
	if req.RealtimeGroups {
		out = append(out, featureBit{
			name:    "realtime-groups",
			already: func(sb xfsfmt.SuperBlock) bool { return sb.RtGroupCount > 0 },
			apply:   func(sb *xfsfmt.SuperBlock) {}, // RtGroupCount/RtGroupBlocks are set by the caller, who owns rt layout
			dependsOn: func(sb xfsfmt.SuperBlock, req repairflags.Features) string {
				if !xfsfmt.IsV5(sb) {
					return "realtime-groups requires a v5 (CRC-enabled) filesystem"
				}
				return ""
			},
		})
	}
	return out
}

// checkRequest implements spec.md §4.9 step 1: reject if any requested feature is already
// present, or has an unmet dependency.
func checkRequest(sb xfsfmt.SuperBlock, req repairflags.Features) error {
	for _, f := range requested(req) {
		if f.already(sb) {
			return newUpgradeError(f.name + " is already enabled")
		}
		if reason := f.dependsOn(sb, req); reason != "" {
			return newUpgradeError(reason)
		}
	}
	return nil
}

// applyFeatureBits implements step 3: copy sb and OR in every requested feature's bit.
func applyFeatureBits(sb xfsfmt.SuperBlock, req repairflags.Features) xfsfmt.SuperBlock {
	next := sb
	for _, f := range requested(req) {
		f.apply(&next)
	}
	return next
}
