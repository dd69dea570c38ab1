package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AuthenticateMessage] = (*AuthenticateCommand)(nil)
	_ gocmd.Commander[RevokeMessage]       = (*RevokeCommand)(nil)
	_ gocmd.Commander[SyncRegistryMessage] = (*SyncRegistryCommand)(nil)
	_ gocmd.Commander[UseMessage]          = (*UseCommand)(nil)
)
