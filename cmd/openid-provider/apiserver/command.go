package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/openid-provider/internal/business"
	"github.com/openkcm/openid-provider/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"OpenID Provider API server",
		"OpenID Provider API server hosts the public OpenID Connect endpoints and a private gRPC health API",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
