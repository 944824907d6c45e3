package bulkload

import (
	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/geometry"
	"github.com/xrepair/xrepair/pkg/rmap"
)

// FreeSpaceIndex is the smallest-extent-first free-space source spec.md §4.3's reservation
// protocol iterates ("the client ... allocates exactly that many blocks from free-space by
// iterating the smallest-extent-first free-space index (bcnt)").
type FreeSpaceIndex interface {
	// Smallest returns the smallest currently-free extent, or ok=false if free space is
	// exhausted.
	Smallest() (start, length int64, ok bool)
	// Claim removes count contiguous blocks starting at start from the free-space index.
	Claim(start, count int64) error
}

// RecordCounter reports how many records a loaded tree needs once reserved contains the given
// number of already-claimed blocks — spec.md §4.3's feedback case: "reserving blocks shrinks
// free-space so that fewer records now need to be inserted into the free-space tree itself."
// Most loader targets (inode btrees, rmap, refcount) have a fixed count and can ignore the
// argument.
type RecordCounter func(reserved int64) int64

// Reservation is the result of running the reservation protocol: the geometry the final
// convergence settled on, and the list of claimed block addresses in claim order.
type Reservation struct {
	Geometry geometry.Geometry
	Blocks   []int64
}

// Reserve runs spec.md §4.3's reservation protocol to convergence: call compute_geometry, claim
// the shortfall from fs (recording each claimed block as an OWN_AG rmap against owner in rmapIdx
// when rmapIdx is non-nil), and repeat until two successive iterations compute the same nr_blocks.
func Reserve(cfg geometry.Config, fs FreeSpaceIndex, counter RecordCounter, rmapIdx *rmap.Index, owner rmap.Owner) (Reservation, error) {
	var claimed []int64
	prevNr := int64(-1)

	for {
		rc := counter(int64(len(claimed)))
		geo, err := geometry.ComputeGeometry(cfg, rc)
		if err != nil {
			return Reservation{}, err
		}
		if geo.NrBlocks == prevNr {
			return Reservation{Geometry: geo, Blocks: claimed}, nil
		}

		need := geo.NrBlocks - int64(len(claimed))
		if need > 0 {
			newBlocks, err := claimBlocks(fs, need)
			if err != nil {
				return Reservation{}, err
			}
			claimed = append(claimed, newBlocks...)
			if rmapIdx != nil {
				for _, b := range newBlocks {
					if err := rmapIdx.Upsert(rmap.Record{StartBlock: b, BlockCount: 1, Owner: owner}); err != nil {
						return Reservation{}, err
					}
				}
			}
		}
		prevNr = geo.NrBlocks
	}
}

// claimBlocks pulls count blocks from fs's smallest-first free-space index, splitting a larger
// extent when only part of it is needed.
func claimBlocks(fs FreeSpaceIndex, count int64) ([]int64, error) {
	var out []int64
	for int64(len(out)) < count {
		start, length, ok := fs.Smallest()
		if !ok {
			return nil, xferrors.New(xferrors.KindNoSpace, "bulkload: insufficient free space to satisfy reservation")
		}
		take := length
		if remaining := count - int64(len(out)); take > remaining {
			take = remaining
		}
		if err := fs.Claim(start, take); err != nil {
			return nil, err
		}
		for i := int64(0); i < take; i++ {
			out = append(out, start+i)
		}
	}
	return out, nil
}

// Surplus computes the leftover blocks once a reservation's actual demand (per the final
// geometry) is known to be smaller than what was claimed — spec.md §4.3: "leftover reservation
// blocks are first offered to the per-group freelist (AGFL); any further excess is inserted into
// a lost blocks slab."
func Surplus(res Reservation) []int64 {
	if int64(len(res.Blocks)) <= res.Geometry.NrBlocks {
		return nil
	}
	return res.Blocks[res.Geometry.NrBlocks:]
}

// DistributeSurplus offers surplus blocks to agfl first (up to its capacity), spilling the rest
// into lost, per spec.md §4.3.
func DistributeSurplus(surplus []int64, agfl AGFL, lost LostBlocksSlab) error {
	for _, b := range surplus {
		if agfl.Offer(b) {
			continue
		}
		if err := lost.Add(b); err != nil {
			return err
		}
	}
	return nil
}

// AGFL is the minimal per-group freelist interface the bulk loader offers surplus blocks to.
type AGFL interface {
	// Offer attempts to push b onto the freelist, returning false if the freelist is full.
	Offer(b int64) bool
}

// LostBlocksSlab collects blocks phase 5 later drains back into free-space via free_extent,
// per spec.md §4.3 and §4.7's "lost blocks are drained into free-space."
type LostBlocksSlab interface {
	Add(b int64) error
}
