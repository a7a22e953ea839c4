package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/fableink/credential-manager/internal/business"
	"github.com/fableink/credential-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Credential Manager API server",
		"Credential Manager API server hosts the public http API for signup, sign-in and recovery flows",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
