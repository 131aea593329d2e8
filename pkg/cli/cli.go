// Package cli implements the autorecord command-line interface for
// inspecting and maintaining recorded stores offline.
package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ha404/autorecord/pkg/config"
	"github.com/ha404/autorecord/pkg/interaction"
	"github.com/ha404/autorecord/pkg/store"
)

// NewRootCommand builds the autorecord command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "autorecord",
		Short:         "Inspect and maintain recorded request/response stores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("dir", ".", "store directory holding session blobs and fixtures")

	root.AddCommand(newListCommand())
	root.AddCommand(newShowCommand())
	root.AddCommand(newVerifyCommand())
	root.AddCommand(newCleanCommand())
	root.AddCommand(newInitCommand())
	return root
}

func storeFromFlags(cmd *cobra.Command) (*store.FileStore, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	return store.New(dir, nil), nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [fileKey]",
		Short: "List recorded tests, per file or across the whole store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFromFlags(cmd)
			if err != nil {
				return err
			}

			var keys []string
			if len(args) == 1 {
				keys = []string{args[0]}
			} else {
				keys, err = st.ListBlobs()
				if err != nil {
					return err
				}
			}

			for _, key := range keys {
				sessions, err := st.Load(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d tests)\n", key, len(sessions))
				for _, testID := range sortedTestIDs(sessions) {
					sess := sessions[testID]
					fmt.Fprintf(cmd.OutOrStdout(), "  %s  %d routes  recorded %s\n",
						testID, len(sess.Routes), sess.Time().Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <fileKey> <test>",
		Short: "Print one test's recorded session as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFromFlags(cmd)
			if err != nil {
				return err
			}
			sessions, err := st.Load(args[0])
			if err != nil {
				return err
			}
			sess, ok := sessions[args[1]]
			if !ok {
				return fmt.Errorf("no session recorded for test %q in %s", args[1], args[0])
			}
			data, err := json.MarshalIndent(sess, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter autorecord.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "autorecord.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			cfg := config.Default()
			if err := config.SaveToFile(path, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func sortedTestIDs(sessions map[string]*interaction.Session) []string {
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
