package rmap

import "sort"

// MaxRefcount is the on-disk-representable refcount ceiling; derivation caps at this value
// rather than overflowing, per spec.md §4.6.
const MaxRefcount = (1 << 32) - 1

// RefcountDomain distinguishes ordinary shared-extent refcounts from CoW-staging refcounts.
type RefcountDomain uint8

const (
	DomainShared RefcountDomain = iota
	DomainCOW
)

// RefcountRecord is one derived refcount record: spec.md §3's (start_block, block_count,
// refcount, domain) tuple.
type RefcountRecord struct {
	StartBlock int64
	BlockCount int64
	Refcount   int64
	Domain     RefcountDomain
}

// bagEntry is one rmap currently "open" in the sweep — still covering the current sweep
// position — tracked by its end so the sweep can find the next closing boundary cheaply.
type bagEntry struct {
	end   int64
	owner Owner
}

// rcbag is the sweep-line multiset of spec.md §4.6, keyed on (start, length, owner) in the spec's
// words; realized here as a small unsorted slice, scanned linearly, rather than a full XfBtree, because the
// live overlap count within one AG's sweep rarely exceeds a handful of entries — the teacher's own
// per-AG working sets in pkg/xfs/compiler.go are likewise plain slices, reserving a real btree for
// state that is actually written to disk.
type rcbag struct {
	entries []bagEntry
}

func (b *rcbag) push(e bagEntry) {
	b.entries = append(b.entries, e)
}

func (b *rcbag) minEnd() (int64, bool) {
	if len(b.entries) == 0 {
		return 0, false
	}
	m := b.entries[0].end
	for _, e := range b.entries[1:] {
		if e.end < m {
			m = e.end
		}
	}
	return m, true
}

// popEnding removes every entry ending exactly at nbno.
func (b *rcbag) popEnding(nbno int64) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.end != nbno {
			kept = append(kept, e)
		}
	}
	b.entries = kept
}

func (b *rcbag) count() int { return len(b.entries) }

// distinctInodeOwners returns every distinct inode owner currently live in the bag, the trigger
// for marking those inodes "has shared extents" per spec.md §4.6.
func (b *rcbag) distinctInodeOwners() []Owner {
	seen := map[int64]bool{}
	var out []Owner
	for _, e := range b.entries {
		if e.owner.Kind != OwnerInode {
			continue
		}
		if !seen[e.owner.Ino] {
			seen[e.owner.Ino] = true
			out = append(out, e.owner)
		}
	}
	return out
}

// DeriveRefcounts runs the sweep-line algorithm of spec.md §4.6 over shareable records, producing
// SHARED refcount records wherever two or more rmaps overlap. sharedOwners receives every inode
// found sharing an extent with another owner at any point during the sweep — used later to set
// the reflink inode flag.
func DeriveRefcounts(in []Record) (recs []RefcountRecord, sharedOwners []Owner, err error) {
	var shareable []Record
	for _, r := range in {
		if r.Shareable() {
			shareable = append(shareable, r)
		}
	}
	sort.Slice(shareable, func(i, j int) bool { return shareable[i].StartBlock < shareable[j].StartBlock })

	seenSharing := map[int64]bool{}
	bag := &rcbag{}
	next := 0

	for next < len(shareable) {
		sbno := shareable[next].StartBlock
		for next < len(shareable) && shareable[next].StartBlock == sbno {
			bag.push(bagEntry{end: shareable[next].End(), owner: shareable[next].Owner})
			next++
		}
		cbno := sbno
		oldHeight := bag.count()

		for {
			nbno, haveEnd := bag.minEnd()
			if next < len(shareable) && (!haveEnd || shareable[next].StartBlock < nbno) {
				nbno = shareable[next].StartBlock
			}

			if oldHeight > 1 {
				for _, o := range bag.distinctInodeOwners() {
					if !seenSharing[o.Ino] {
						seenSharing[o.Ino] = true
						sharedOwners = append(sharedOwners, o)
					}
				}
			}

			bag.popEnding(nbno)
			for next < len(shareable) && shareable[next].StartBlock == nbno {
				bag.push(bagEntry{end: shareable[next].End(), owner: shareable[next].Owner})
				next++
			}

			if bag.count() != oldHeight {
				if oldHeight > 1 {
					recs = append(recs, RefcountRecord{
						StartBlock: cbno,
						BlockCount: nbno - cbno,
						Refcount:   capRefcount(int64(oldHeight)),
						Domain:     DomainShared,
					})
				}
				cbno = nbno
			}

			if bag.count() == 0 {
				break
			}
			oldHeight = bag.count()
		}
	}

	return recs, sharedOwners, nil
}

func capRefcount(h int64) int64 {
	if h > MaxRefcount {
		return MaxRefcount
	}
	return h
}
