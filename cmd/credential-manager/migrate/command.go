package migrate

import (
	"github.com/spf13/cobra"

	"github.com/fableink/credential-manager/internal/business"
	"github.com/fableink/credential-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Credential Manager database migration",
		"Credential Manager database migration applies the embedded schema migrations and exits",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
