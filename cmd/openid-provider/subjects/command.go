package subjects

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/openid-provider/internal/business"
	"github.com/openkcm/openid-provider/internal/cmdutils"
	"github.com/openkcm/openid-provider/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var file string

	cmd := cmdutils.CobraCommand(
		"import-subjects",
		"Import subject attributes",
		"Creates or replaces the attributes of the subjects listed in a YAML file, keyed by subject identifier",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			return business.ImportSubjectsMain(ctx, cfg, file)
		},
	)

	cmd.Flags().StringVarP(&file, "file", "f", "subjects.yaml", "YAML file with the subject attributes")

	return cmd
}
