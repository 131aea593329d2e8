package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ha404/autorecord/pkg/store"
)

// VerifyResult describes fixture reference problems in a store directory.
type VerifyResult struct {
	// Dangling maps "fileKey/testID" to fixture ids referenced by a
	// session but missing on disk.
	Dangling map[string][]string
	// Orphans maps fileKey to fixture ids on disk that no session
	// references.
	Orphans map[string][]string
}

// OK reports whether the store is internally consistent.
func (r *VerifyResult) OK() bool {
	return len(r.Dangling) == 0 && len(r.Orphans) == 0
}

// Verify cross-checks every session blob against the fixture blobs on
// disk: each fixtureId must resolve, and each fixture file must still be
// referenced.
func Verify(st *store.FileStore) (*VerifyResult, error) {
	result := &VerifyResult{
		Dangling: map[string][]string{},
		Orphans:  map[string][]string{},
	}

	keys, err := st.ListBlobs()
	if err != nil {
		return nil, err
	}

	referenced := map[string]map[string]bool{}
	for _, key := range keys {
		sessions, err := st.Load(key)
		if err != nil {
			return nil, err
		}

		onDisk, err := st.ListFixtures(key)
		if err != nil {
			return nil, err
		}
		exists := map[string]bool{}
		for _, id := range onDisk {
			exists[id] = true
		}

		if referenced[key] == nil {
			referenced[key] = map[string]bool{}
		}
		for testID, sess := range sessions {
			for _, fixtureID := range sess.FixtureIDs() {
				referenced[key][fixtureID] = true
				if !exists[fixtureID] {
					ref := key + "/" + testID
					result.Dangling[ref] = append(result.Dangling[ref], fixtureID)
				}
			}
		}
	}

	allFixtures, err := st.ListAllFixtures()
	if err != nil {
		return nil, err
	}
	for key, ids := range allFixtures {
		for _, id := range ids {
			if !referenced[key][id] {
				result.Orphans[key] = append(result.Orphans[key], id)
			}
		}
		sort.Strings(result.Orphans[key])
	}

	return result, nil
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every fixture reference resolves and no fixture is orphaned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFromFlags(cmd)
			if err != nil {
				return err
			}
			result, err := Verify(st)
			if err != nil {
				return err
			}
			if result.OK() {
				fmt.Fprintln(cmd.OutOrStdout(), "store is consistent")
				return nil
			}
			for ref, ids := range result.Dangling {
				fmt.Fprintf(cmd.OutOrStdout(), "dangling: %s -> %v\n", ref, ids)
			}
			for key, ids := range result.Orphans {
				fmt.Fprintf(cmd.OutOrStdout(), "orphaned: %s -> %v\n", key, ids)
			}
			return fmt.Errorf("store has %d dangling reference(s) and %d orphaned fixture key(s)",
				len(result.Dangling), len(result.Orphans))
		},
	}
}
