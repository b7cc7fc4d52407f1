package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"trialcore/internal/persistence"
	"trialcore/internal/trial"
	"trialcore/pkg/document"
)

func newMergeTrialCmd(a *app) *cobra.Command {
	var (
		showDiff bool
		persist  bool
	)
	cmd := &cobra.Command{
		Use:   "merge-trial PATCH [TARGET]",
		Short: "Merge a trial patch into a trial document",
		Long: `Merges PATCH into TARGET and prints the result. With --store the target is
the stored trial of the patch's study and the result is persisted.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			var target, merged document.Object
			targetName := "target"
			switch {
			case persist:
				if len(args) > 1 {
					return fmt.Errorf("TARGET and --store are exclusive")
				}
				svc, err := a.service(cmd.Context(), false)
				if err != nil {
					return err
				}
				if showDiff {
					target, targetName, err = storedTarget(cmd.Context(), svc.Store(), patch)
					if err != nil {
						return err
					}
				}
				merged, err = svc.ApplyPatch(cmd.Context(), patch)
				if err != nil {
					return err
				}
			default:
				if len(args) < 2 {
					return fmt.Errorf("TARGET is required without --store")
				}
				target, err = readDocument(cmd.InOrStdin(), args[1])
				if err != nil {
					return err
				}
				targetName = args[1]
				m, err := a.merger()
				if err != nil {
					return err
				}
				merged, err = m.Merge(patch, target)
				if err != nil {
					return err
				}
			}
			if showDiff {
				diff, err := unifiedDiff(target, merged, targetName)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
				return err
			}
			return writeJSON(cmd.OutOrStdout(), merged)
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print a unified diff against the target instead of the result")
	cmd.Flags().BoolVar(&persist, "store", false, "merge into the stored trial and persist the result")
	return cmd
}

// storedTarget loads the stored trial patch merges into. A study that is not
// stored yet diffs against an empty document.
func storedTarget(ctx context.Context, store persistence.Store, patch document.Object) (document.Object, string, error) {
	id, err := trial.StudyID(patch)
	if err != nil {
		return nil, "target", nil
	}
	doc, err := store.Get(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, id, nil
	}
	if err != nil {
		return nil, id, fmt.Errorf("load stored trial %s: %w", id, err)
	}
	return doc, id, nil
}

// unifiedDiff renders both documents as indented JSON, which sorts object
// keys, and diffs them line by line.
func unifiedDiff(before, after document.Object, name string) (string, error) {
	a, err := indented(before)
	if err != nil {
		return "", err
	}
	b, err := indented(after)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: name,
		ToFile:   "merged",
		Context:  3,
	})
}

func indented(doc document.Object) (string, error) {
	if doc == nil {
		return "", nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
