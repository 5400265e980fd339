package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/openid-provider/internal/business"
	"github.com/openkcm/openid-provider/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"OpenID Provider migrations",
		"Applies the database migrations of the subject store",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
