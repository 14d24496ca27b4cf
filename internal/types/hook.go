package types

type HookType string

const (
	HookTypeInstall     HookType = "install"
	HookTypePostInstall HookType = "post-install"
	HookTypeUpdate      HookType = "update"
	HookTypePostUpdate  HookType = "post-update"
)

// HookFile is the bundle-relative path of the script for a hook type.
func (h HookType) HookFile() string {
	return "hooks/" + string(h) + ".sh"
}
