// =============================================================================
// Storage Billing - Inventory Grouping
// =============================================================================
//
// Collapses normalized depot lines into billing groups.
//
// GROUP KEY:
//   (Protocol, Potential Service, Storage Type), compared as given. Blank
//   values form their own group; nothing is dropped at this stage.
//
// AGGREGATES:
//   - Amount of Kits:     sum over the group
//   - Distinct Positions: number of unique non-blank positions
//   - Description:        unique non-blank descriptions in first-seen order,
//                         joined with "; "
//
// Groups are returned sorted by key so that a report is stable regardless of
// the row order in the source workbook.
//
// =============================================================================

package billing

import (
	"sort"
	"strings"

	"github.com/ginjaninja78/storage-billing/internal/types"
)

// DescriptionSeparator joins the unique descriptions of a group.
const DescriptionSeparator = "; "

type groupKey struct {
	protocol    string
	potential   string
	storageType string
}

type groupState struct {
	group        types.InventoryGroup
	positions    map[string]struct{}
	descriptions []string
	seenDesc     map[string]struct{}
}

// GroupInventory groups rows by protocol, potential service and storage type.
func GroupInventory(rows []types.InventoryRow) []types.InventoryGroup {
	states := make(map[groupKey]*groupState)
	keys := make([]groupKey, 0)

	for _, row := range rows {
		key := groupKey{
			protocol:    row.Protocol,
			potential:   row.PotentialService,
			storageType: row.StorageType,
		}

		st, ok := states[key]
		if !ok {
			st = &groupState{
				group: types.InventoryGroup{
					Protocol:         row.Protocol,
					PotentialService: row.PotentialService,
					StorageType:      row.StorageType,
				},
				positions: make(map[string]struct{}),
				seenDesc:  make(map[string]struct{}),
			}
			states[key] = st
			keys = append(keys, key)
		}

		st.group.AmountOfKits += row.AmountOfKits

		if pos := strings.TrimSpace(row.Position); pos != "" {
			st.positions[pos] = struct{}{}
		}

		if desc := row.Description; strings.TrimSpace(desc) != "" {
			if _, dup := st.seenDesc[desc]; !dup {
				st.seenDesc[desc] = struct{}{}
				st.descriptions = append(st.descriptions, desc)
			}
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.protocol != b.protocol {
			return a.protocol < b.protocol
		}
		if a.potential != b.potential {
			return a.potential < b.potential
		}
		return a.storageType < b.storageType
	})

	groups := make([]types.InventoryGroup, 0, len(keys))
	for _, key := range keys {
		st := states[key]
		st.group.DistinctPositions = len(st.positions)
		st.group.Description = strings.Join(st.descriptions, DescriptionSeparator)
		groups = append(groups, st.group)
	}

	return groups
}
