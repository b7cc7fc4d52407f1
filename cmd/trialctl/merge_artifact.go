package main

import (
	"time"

	"github.com/spf13/cobra"

	"trialcore/internal/artifact"
)

func newMergeArtifactCmd(a *app) *cobra.Command {
	var (
		docPath   string
		subsystem string
		size      int64
		md5       string
		timestamp string
		persist   bool
	)
	cmd := &cobra.Command{
		Use:   "merge-artifact OBJECT_URL",
		Short: "Record an uploaded file on its assay record",
		Long: `Attaches the file at OBJECT_URL (org/participant/sample/aliquot/subsystem/file)
to the matching assay record. The trial is read from --doc, or from the trial
store when --store is given, in which case the result is persisted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timestamp == "" {
				timestamp = time.Now().UTC().Format(time.RFC3339)
			}
			if persist {
				return mergeStoredArtifact(cmd, a, args[0], subsystem, size, md5, timestamp)
			}
			doc, err := readDocument(cmd.InOrStdin(), docPath)
			if err != nil {
				return err
			}
			out, err := artifact.NewMerger().MergeArtifact(doc, subsystem, args[0], size, timestamp, md5)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "-", "trial document JSON file (- for stdin)")
	cmd.Flags().StringVar(&subsystem, "subsystem", "wes", "artifact subsystem")
	cmd.Flags().Int64Var(&size, "size", 0, "file size in bytes")
	cmd.Flags().StringVar(&md5, "md5", "", "file md5 hash")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "upload timestamp (default: now, RFC 3339)")
	cmd.Flags().BoolVar(&persist, "store", false, "apply to the stored trial of the URL's study")
	return cmd
}

func mergeStoredArtifact(cmd *cobra.Command, a *app, objectURL, subsystem string, size int64, md5, timestamp string) error {
	parts, err := artifact.ParseURL(objectURL)
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return err
	}
	svc, err := a.service(cmd.Context(), false)
	if err != nil {
		return err
	}
	out, err := svc.ApplyArtifacts(cmd.Context(), parts.Org, subsystem, []artifact.Upload{{
		URL: objectURL, Size: size, MD5: md5, Timestamp: ts,
	}})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
