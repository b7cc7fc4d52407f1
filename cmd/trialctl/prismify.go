package main

import (
	"github.com/spf13/cobra"

	"trialcore/internal/prism"
	"trialcore/internal/workbook"
	"trialcore/pkg/document"
)

type prismifyOutput struct {
	Document document.Object  `json:"document"`
	Files    []prismifiedFile `json:"files"`
}

type prismifiedFile struct {
	TemplateKey       string `json:"template_key"`
	LocalPath         string `json:"local_path"`
	FieldName         string `json:"field_name"`
	DerivedStorageKey string `json:"derived_storage_key"`
	Placeholder       string `json:"upload_placeholder"`
}

func newPrismifyCmd(a *app) *cobra.Command {
	var assay string
	cmd := &cobra.Command{
		Use:   "prismify WORKBOOK",
		Short: "Convert an upload workbook into a trial document fragment",
		Long: `Reads a YAML, JSON or CSV workbook and prints the trial document fragment
it describes together with the local files it references.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := workbook.ReadFile(args[0])
			if err != nil {
				return err
			}
			tpl, err := a.template(assay)
			if err != nil {
				return err
			}
			res, err := prism.Prismify(wb, tpl, prism.Options{EncryptKey: a.encryptKey(), Rules: a.schemas})
			if err != nil {
				return err
			}
			out := prismifyOutput{Document: res.Document, Files: make([]prismifiedFile, 0, len(res.Files))}
			for _, fd := range res.Files {
				out.Files = append(out.Files, prismifiedFile{
					TemplateKey:       fd.TemplateKey,
					LocalPath:         fd.LocalPath,
					FieldName:         fd.Field.FieldName(),
					DerivedStorageKey: fd.StorageKey,
					Placeholder:       fd.Placeholder,
				})
			}
			a.logger.Debug("workbook prismified", "path", args[0], "files", len(out.Files))
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&assay, "assay", "wes", "assay template to apply")
	return cmd
}
