package domain

import (
	"fmt"
	"sort"
)

// Ledger maps account ids to the list of asset ids they are believed to hold.
// An asset id appears in at most one account's list at any time: Add and
// Remove check this instead of silently dropping or duplicating ids.
type Ledger map[string][]string

// NewLedger returns a copy of the given holdings after making sure that no
// asset is held by more than one account.
func NewLedger(holdings map[string][]string) (Ledger, error) {
	l := make(Ledger, len(holdings))
	for _, accountID := range sortedKeys(holdings) {
		if err := l.Add(accountID, holdings[accountID]); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Holder returns the account holding the given asset.
func (l Ledger) Holder(assetID string) (string, bool) {
	for accountID, assets := range l {
		for _, id := range assets {
			if id == assetID {
				return accountID, true
			}
		}
	}
	return "", false
}

// Holds returns whether the account holds the given asset.
func (l Ledger) Holds(accountID, assetID string) bool {
	for _, id := range l[accountID] {
		if id == assetID {
			return true
		}
	}
	return false
}

// First returns the first asset held by the account.
func (l Ledger) First(accountID string) (string, bool) {
	assets := l[accountID]
	if len(assets) <= 0 {
		return "", false
	}
	return assets[0], true
}

// Remove takes the given assets out of the account's list. It fails without
// touching the ledger if any of them is not held by the account.
func (l Ledger) Remove(accountID string, assetIDs []string) error {
	toRemove := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		if !l.Holds(accountID, id) {
			return fmt.Errorf("%w: %s not held by %s", ErrLedgerAssetNotHeld, id, accountID)
		}
		if _, ok := toRemove[id]; ok {
			return fmt.Errorf("%w: %s listed twice", ErrLedgerAssetNotHeld, id)
		}
		toRemove[id] = struct{}{}
	}
	if len(toRemove) <= 0 {
		return nil
	}

	remaining := make([]string, 0, len(l[accountID]))
	for _, id := range l[accountID] {
		if _, ok := toRemove[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	l[accountID] = remaining
	return nil
}

// Add appends the given assets to the account's list. It fails without
// touching the ledger if any of them is already held by some account.
func (l Ledger) Add(accountID string, assetIDs []string) error {
	seen := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		if holder, ok := l.Holder(id); ok {
			return fmt.Errorf("%w: %s held by %s", ErrLedgerAssetAlreadyHeld, id, holder)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s listed twice", ErrLedgerAssetAlreadyHeld, id)
		}
		seen[id] = struct{}{}
	}

	if _, ok := l[accountID]; !ok {
		l[accountID] = make([]string, 0, len(assetIDs))
	}
	l[accountID] = append(l[accountID], assetIDs...)
	return nil
}

// Transfer moves the given assets from one account to another.
func (l Ledger) Transfer(from, to string, assetIDs []string) error {
	if err := l.Remove(from, assetIDs); err != nil {
		return err
	}
	return l.Add(to, assetIDs)
}

// Count returns the overall number of assets in the ledger.
func (l Ledger) Count() int {
	count := 0
	for _, assets := range l {
		count += len(assets)
	}
	return count
}

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	clone := make(Ledger, len(l))
	for accountID, assets := range l {
		clone[accountID] = append([]string{}, assets...)
	}
	return clone
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
