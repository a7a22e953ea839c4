package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/fableink/credential-manager/internal/business"
	"github.com/fableink/credential-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Credential Manager housekeeper",
		"Credential Manager housekeeper periodically removes expired flow state",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
