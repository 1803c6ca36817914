package airdrop

// PayoutLedger is the append-only list of amounts owed to addresses. It is
// drained by an external disburser through Export and Acknowledge.
type PayoutLedger struct {
	entries []PayoutEntry
}

// Append queues amount for address and returns the entry's index.
func (l *PayoutLedger) Append(address Address, amount uint64) Index {
	l.entries = append(l.entries, PayoutEntry{Address: address, Amount: amount})
	return Index(len(l.entries) - 1)
}

// Export rescans the ledger from `from` and returns every untransferred
// entry. The cursor is the index of the last untransferred entry found, or
// `from` when there is none. Export never mutates the ledger.
func (l *PayoutLedger) Export(from Index) (Index, []PayoutEntry) {
	cursor, pending, _ := l.ExportIndexed(from)
	return cursor, pending
}

// ExportIndexed is Export that also returns the ledger index of each
// returned entry.
func (l *PayoutLedger) ExportIndexed(from Index) (Index, []PayoutEntry, []Index) {
	cursor := from
	pending := make([]PayoutEntry, 0)
	indices := make([]Index, 0)
	for idx := from; uint64(idx) < uint64(len(l.entries)); idx++ {
		entry := l.entries[idx]
		if entry.Transferred {
			continue
		}
		pending = append(pending, entry)
		indices = append(indices, idx)
		cursor = idx
	}
	return cursor, pending, indices
}

// Acknowledge marks as transferred every entry at or after `from` whose
// address matches entry.Address. Matching is by address, not by index, so
// entries queued for the same address after the exported batch are marked
// too. It returns the number of entries that changed state.
func (l *PayoutLedger) Acknowledge(from Index, entry PayoutEntry) int {
	flipped := 0
	for idx := from; uint64(idx) < uint64(len(l.entries)); idx++ {
		if l.entries[idx].Address != entry.Address {
			continue
		}
		if !l.entries[idx].Transferred {
			flipped++
		}
		l.entries[idx].Transferred = true
	}
	return flipped
}

// Contains reports whether address was ever queued, transferred or not.
func (l *PayoutLedger) Contains(address Address) bool {
	for _, entry := range l.entries {
		if entry.Address == address {
			return true
		}
	}
	return false
}

// Len returns the number of entries ever appended.
func (l *PayoutLedger) Len() int {
	return len(l.entries)
}

// Pending returns the count and total amount of untransferred entries.
func (l *PayoutLedger) Pending() (int, uint64) {
	count := 0
	var total uint64
	for _, entry := range l.entries {
		if entry.Transferred {
			continue
		}
		count++
		total += entry.Amount
	}
	return count, total
}

// Entry returns the entry at idx.
func (l *PayoutLedger) Entry(idx Index) (PayoutEntry, bool) {
	if uint64(idx) >= uint64(len(l.entries)) {
		return PayoutEntry{}, false
	}
	return l.entries[idx], true
}

func (l *PayoutLedger) snapshot() []PayoutEntry {
	out := make([]PayoutEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
