package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ha404/autorecord/pkg/store"
)

// Clean removes sessions for tests not in keep, together with the fixture
// blobs they reference, and flushes the pruned blob. Deletions are
// collected before any blob is touched.
func Clean(st *store.FileStore, fileKey string, keep []string) (removed []string, err error) {
	sessions, err := st.Load(fileKey)
	if err != nil {
		return nil, err
	}

	keepSet := map[string]bool{}
	for _, id := range keep {
		keepSet[id] = true
	}

	var fixtures []string
	for testID, sess := range sessions {
		if keepSet[testID] {
			continue
		}
		removed = append(removed, testID)
		fixtures = append(fixtures, sess.FixtureIDs()...)
	}

	for _, testID := range removed {
		delete(sessions, testID)
	}
	for _, fixtureID := range fixtures {
		if err := st.DeleteFixture(fileKey, fixtureID); err != nil {
			return nil, err
		}
	}

	if err := st.Flush(fileKey, sessions); err != nil {
		return nil, err
	}
	return removed, nil
}

func newCleanCommand() *cobra.Command {
	var keep []string

	cmd := &cobra.Command{
		Use:   "clean <fileKey>",
		Short: "Prune sessions for tests no longer present, plus their fixtures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFromFlags(cmd)
			if err != nil {
				return err
			}
			removed, err := Clean(st, args[0], keep)
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to prune")
				return nil
			}
			for _, testID := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", testID)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&keep, "keep", nil, "test names to keep (repeatable)")
	return cmd
}
